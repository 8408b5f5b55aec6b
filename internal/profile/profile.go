// Package profile holds the static per-store scraping configuration:
// selectors for the listing DOM, pagination behavior and pacing ranges.
// Profiles are pure data, validated once at startup.
package profile

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("store profile not found")

// SelectorSet locates the pieces of a store's listing and product pages.
// Class names on these storefronts are build artifacts and rot over time,
// so they live here rather than in code.
type SelectorSet struct {
	ProductList      string
	ProductName      string
	ProductPrice     string
	ProductImage     string
	ProductURL       string
	LoadMoreControl  string
	ProductPagePrice string
	SoldOutIndicator string
}

// DelayRange is a jittered pause applied between browser actions.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

type Delays struct {
	Navigation DelayRange
	Pagination DelayRange
}

type StoreProfile struct {
	ID             int
	Key            string
	Name           string
	BaseURL        string
	Selectors      SelectorSet
	Delays         Delays
	InfiniteScroll bool
}

// Registry is a closed set of store profiles keyed by store key and id.
type Registry struct {
	byKey map[string]StoreProfile
	byID  map[int]StoreProfile
}

// NewRegistry validates and indexes the built-in profiles. A profile with
// a missing selector is a startup error, not a runtime surprise.
func NewRegistry() (*Registry, error) {
	return newRegistry(builtinProfiles())
}

func newRegistry(profiles []StoreProfile) (*Registry, error) {
	r := &Registry{
		byKey: make(map[string]StoreProfile, len(profiles)),
		byID:  make(map[int]StoreProfile, len(profiles)),
	}

	for _, p := range profiles {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Key, err)
		}
		if _, dup := r.byKey[p.Key]; dup {
			return nil, fmt.Errorf("profile %q: duplicate store key", p.Key)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("profile %q: duplicate store id %d", p.Key, p.ID)
		}
		r.byKey[p.Key] = p
		r.byID[p.ID] = p
	}

	return r, nil
}

// ProfileFor looks up a profile by its store key (e.g. "eldorado").
func (r *Registry) ProfileFor(key string) (StoreProfile, error) {
	p, ok := r.byKey[key]
	if !ok {
		return StoreProfile{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return p, nil
}

// ProfileForID looks up a profile by its numeric store id.
func (r *Registry) ProfileForID(id int) (StoreProfile, error) {
	p, ok := r.byID[id]
	if !ok {
		return StoreProfile{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return p, nil
}

// StoreName returns the display name for a store id, or "???" for ids the
// registry does not know. Callers log the unknown id themselves.
func (r *Registry) StoreName(id int) string {
	if p, ok := r.byID[id]; ok {
		return p.Name
	}
	return "???"
}

func validate(p StoreProfile) error {
	if p.ID <= 0 {
		return fmt.Errorf("store id must be positive")
	}
	if p.Key == "" {
		return fmt.Errorf("store key must not be empty")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}

	selectors := map[string]string{
		"productList":      p.Selectors.ProductList,
		"productName":      p.Selectors.ProductName,
		"productPrice":     p.Selectors.ProductPrice,
		"productImage":     p.Selectors.ProductImage,
		"productUrl":       p.Selectors.ProductURL,
		"productPagePrice": p.Selectors.ProductPagePrice,
		"soldOutIndicator": p.Selectors.SoldOutIndicator,
	}
	for name, sel := range selectors {
		if sel == "" {
			return fmt.Errorf("missing selector %s", name)
		}
	}

	// Click-paginated stores need a load-more control; infinite-scroll
	// stores have none.
	if !p.InfiniteScroll && p.Selectors.LoadMoreControl == "" {
		return fmt.Errorf("missing selector loadMoreControl")
	}

	for _, d := range []DelayRange{p.Delays.Navigation, p.Delays.Pagination} {
		if d.Min <= 0 || d.Max < d.Min {
			return fmt.Errorf("invalid delay range %v..%v", d.Min, d.Max)
		}
	}

	return nil
}

func builtinProfiles() []StoreProfile {
	return []StoreProfile{
		{
			ID:      1,
			Key:     "eldorado",
			Name:    "Эльдорадо",
			BaseURL: "https://www.eldorado.ru",
			Selectors: SelectorSet{
				ProductList:      "#listing-container > ul > li.PD > div",
				ProductName:      ".ZD",
				ProductPrice:     ".LW.TW",
				ProductImage:     ".BC",
				ProductURL:       ".ZD",
				LoadMoreControl:  "#listing-container > div.Gy > button",
				ProductPagePrice: "#__next > div.elh > main > div > div.elXr > div.elsH > div > div.el2H > p.el3H",
				SoldOutIndicator: "#__next > div.elh > main > div > div.elXr > div.elsH > div > p.elQH",
			},
			Delays: Delays{
				Navigation: DelayRange{Min: 10 * time.Second, Max: 15 * time.Second},
				Pagination: DelayRange{Min: 5 * time.Second, Max: 8 * time.Second},
			},
		},
		{
			ID:             2,
			Key:            "ozon",
			Name:           "Ozon",
			BaseURL:        "https://www.ozon.ru",
			InfiniteScroll: true,
			Selectors: SelectorSet{
				ProductList:      ".widget-search-result-container > div > div",
				ProductName:      ".tsBody500Medium",
				ProductPrice:     ".ui-j > span",
				ProductImage:     ".tile-hover-target img",
				ProductURL:       "a.tile-hover-target",
				ProductPagePrice: "[data-widget=\"webPrice\"] span",
				SoldOutIndicator: "[data-widget=\"webOutOfStock\"]",
			},
			Delays: Delays{
				Navigation: DelayRange{Min: 1 * time.Second, Max: 2 * time.Second},
				Pagination: DelayRange{Min: 2 * time.Second, Max: 3 * time.Second},
			},
		},
	}
}
