package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricewatch/storefront-scraper/internal/profile"
)

// Extractor pulls raw listing cards out of a loaded page. It evaluates
// inside the page's content context; when that yields nothing it falls
// back to parsing the rendered HTML.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract returns one RawCard per listing element, in DOM order. Missing
// elements yield empty fields, never an error. No dedup at this stage.
func (e *Extractor) Extract(drv Driver, p profile.StoreProfile) ([]RawCard, error) {
	script := fmt.Sprintf(`() => {
		const cards = document.querySelectorAll(%q);
		return [...cards].map((card) => {
			const link = card.querySelector(%q);
			const image = card.querySelector(%q);
			return {
				name: card.querySelector(%q)?.textContent?.trim() || "",
				price: card.querySelector(%q)?.textContent?.trim() || "",
				image: image?.getAttribute("src")?.trim() || "",
				url: link?.getAttribute("href")?.trim() || "",
			};
		});
	}`,
		p.Selectors.ProductList,
		p.Selectors.ProductURL,
		p.Selectors.ProductImage,
		p.Selectors.ProductName,
		p.Selectors.ProductPrice,
	)

	result, err := drv.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate card extraction: %w", err)
	}

	cards := cardsFromEvaluate(result)
	if len(cards) > 0 {
		return cards, nil
	}

	// Some storefronts serve listing markup that the in-page evaluation
	// misses after a reload; retry against the rendered HTML.
	html, err := drv.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	cards, err = ExtractFromHTML(html, p)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("extracted cards from rendered HTML", "store", p.Key, "count", len(cards))
	return cards, nil
}

// ExtractPrice reads the price element of a single product page and
// parses it. Returns PriceMissing when the element is absent.
func (e *Extractor) ExtractPrice(drv Driver, p profile.StoreProfile) (int, error) {
	script := fmt.Sprintf(
		`() => document.querySelector(%q)?.textContent?.trim() || ""`,
		p.Selectors.ProductPagePrice,
	)

	result, err := drv.Evaluate(script)
	if err != nil {
		return PriceMissing, fmt.Errorf("failed to evaluate price extraction: %w", err)
	}

	text, _ := result.(string)
	return ParsePrice(text), nil
}

// IsSoldOut checks the profile's sold-out indicator on a product page.
func (e *Extractor) IsSoldOut(drv Driver, p profile.StoreProfile) (bool, error) {
	count, err := drv.Count(p.Selectors.SoldOutIndicator)
	if err != nil {
		return false, fmt.Errorf("failed to check sold-out indicator: %w", err)
	}
	return count > 0, nil
}

// ExtractFromHTML parses listing cards out of rendered HTML with the
// same selector semantics as the in-page path.
func ExtractFromHTML(html string, p profile.StoreProfile) ([]RawCard, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var cards []RawCard
	doc.Find(p.Selectors.ProductList).Each(func(_ int, card *goquery.Selection) {
		raw := RawCard{
			NameText:  strings.TrimSpace(card.Find(p.Selectors.ProductName).First().Text()),
			PriceText: strings.TrimSpace(card.Find(p.Selectors.ProductPrice).First().Text()),
		}
		if src, ok := card.Find(p.Selectors.ProductImage).First().Attr("src"); ok {
			raw.ImageURL = strings.TrimSpace(src)
		}
		if href, ok := card.Find(p.Selectors.ProductURL).First().Attr("href"); ok {
			raw.LinkURL = strings.TrimSpace(href)
		}
		cards = append(cards, raw)
	})

	return cards, nil
}

func cardsFromEvaluate(result any) []RawCard {
	items, ok := result.([]any)
	if !ok {
		return nil
	}

	cards := make([]RawCard, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cards = append(cards, RawCard{
			NameText:  stringField(fields, "name"),
			PriceText: stringField(fields, "price"),
			ImageURL:  stringField(fields, "image"),
			LinkURL:   stringField(fields, "url"),
		})
	}
	return cards
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
