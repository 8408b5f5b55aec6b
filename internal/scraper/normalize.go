package scraper

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Sentinels marking fields that could not be extracted. The textual ones
// are what the catalog historically stored for missing values; the
// numeric price sentinel is the only form that leaves the normalizer.
const (
	PriceMissing = -1

	NameMissing  = "Нет названия"
	ImageMissing = "Нет картинки"
	URLMissing   = "Нет ссылки"
)

// RawCard is the transient extraction output for one listing element.
// Empty strings mean the element or attribute was absent.
type RawCard struct {
	NameText  string
	PriceText string
	ImageURL  string
	LinkURL   string
}

// ProductRecord is the normalized, validated product entity. URL is the
// natural key the backend dedups on.
type ProductRecord struct {
	Name       string    `json:"name"`
	Price      int       `json:"price"`
	Image      string    `json:"image"`
	URL        string    `json:"url"`
	StoreID    int       `json:"store_id"`
	CategoryID int       `json:"category_id"`
	ParseDate  time.Time `json:"parse_date"`
}

// IsComplete reports whether no field carries a sentinel. Records failing
// this predicate never reach reconciliation.
func (r ProductRecord) IsComplete() bool {
	return r.Name != NameMissing &&
		r.Price != PriceMissing &&
		r.Image != ImageMissing &&
		r.URL != URLMissing
}

// Normalize turns a raw card into a product record, substituting
// sentinels for missing fields and resolving relative links against the
// store's base URL. It is a pure function of its inputs.
func Normalize(card RawCard, baseURL string, storeID, categoryID int, capturedAt time.Time) ProductRecord {
	rec := ProductRecord{
		Name:       NameMissing,
		Price:      ParsePrice(card.PriceText),
		Image:      ImageMissing,
		URL:        URLMissing,
		StoreID:    storeID,
		CategoryID: categoryID,
		ParseDate:  capturedAt,
	}

	if name := strings.TrimSpace(card.NameText); name != "" {
		rec.Name = name
	}
	if img := strings.TrimSpace(card.ImageURL); img != "" {
		rec.Image = resolveURL(baseURL, img)
	}
	if link := strings.TrimSpace(card.LinkURL); link != "" {
		rec.URL = resolveURL(baseURL, link)
	}

	return rec
}

// ParsePrice parses storefront price text ("12 999 руб.", "1 234 ₽")
// into an integer amount. Unparsable or absent text yields PriceMissing.
func ParsePrice(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return PriceMissing
	}

	// Cut the currency suffix and anything after it.
	for _, marker := range []string{"руб", "₽"} {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = text[:idx]
		}
	}

	// Drop a kopeck fraction (",00" / ".00") if present.
	if idx := strings.LastIndexAny(text, ",."); idx >= 0 {
		frac := strings.TrimSpace(text[idx+1:])
		if len(frac) > 0 && len(frac) <= 2 && allDigits(frac) {
			text = text[:idx]
		}
	}

	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return PriceMissing
	}

	price, err := strconv.Atoi(digits.String())
	if err != nil || price < 0 {
		return PriceMissing
	}
	return price
}

// Dedupe collapses records that normalized to the same URL, keeping the
// first occurrence (DOM order).
func Dedupe(records []ProductRecord) []ProductRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// FilterComplete splits records into the complete set and a dropped
// count. Dropped records are counted, not logged individually.
func FilterComplete(records []ProductRecord) (complete []ProductRecord, dropped int) {
	for _, rec := range records {
		if rec.IsComplete() {
			complete = append(complete, rec)
		} else {
			dropped++
		}
	}
	return complete, dropped
}

func resolveURL(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
