// Package catalog is the core's view of the backend catalog service:
// the HTTP contract types, the client, and the reconciliation logic
// that decides which backend calls a scraped record warrants.
package catalog

import (
	"time"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

// Category is one scrape target supplied by the backend. Read-only to
// the core.
type Category struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	StoreID int    `json:"store_id"`
}

// Product is a catalog row as the backend returns it.
type Product struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Price      int       `json:"price"`
	Image      string    `json:"image"`
	URL        string    `json:"url"`
	StoreID    int       `json:"store_id"`
	CategoryID int       `json:"category_id"`
	ParseDate  time.Time `json:"parse_date"`
}

// ProductRef identifies a known product for a refresh run.
type ProductRef struct {
	URL            string
	StoreID        int
	Name           string
	LastKnownPrice int
}

// Action classifies what reconciliation did with one record.
type Action string

const (
	ActionCreated      Action = "created"
	ActionPriceUpdated Action = "price_updated"
	ActionUnchanged    Action = "unchanged"
	ActionSkipped      Action = "skipped"
)

// Outcome is the per-record reconciliation result. Not persisted by the
// core; the backend owns storage.
type Outcome struct {
	Action Action
	Record scraper.ProductRecord
}
