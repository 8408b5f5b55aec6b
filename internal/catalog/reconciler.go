package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

// Backend is the slice of the client the reconciler calls. Satisfied by
// *Client; tests substitute a fake.
type Backend interface {
	Products(ctx context.Context) ([]Product, error)
	AddProduct(ctx context.Context, rec scraper.ProductRecord) error
	UpdatePrice(ctx context.Context, productURL string, price int, parseDate time.Time) error
}

// Reconciler decides, per product, whether to create a catalog entry or
// update the price on an existing one. In dry-run (debug) mode it logs
// the decision instead of issuing the call.
type Reconciler struct {
	backend Backend
	dryRun  bool
	logger  *slog.Logger

	mu       sync.Mutex
	known    map[string]int       // url -> last known price
	lastSeen map[string]time.Time // url -> last capture reported
}

func NewReconciler(backend Backend, dryRun bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		backend:  backend,
		dryRun:   dryRun,
		logger:   logger.With("component", "reconciler"),
		known:    make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

// LoadIndex pulls the current catalog once so discovery decisions can be
// made without a per-record backend query.
func (r *Reconciler) LoadIndex(ctx context.Context) error {
	products, err := r.backend.Products(ctx)
	if err != nil {
		return fmt.Errorf("failed to load product index: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		r.known[p.URL] = p.Price
		r.lastSeen[p.URL] = p.ParseDate
	}

	r.logger.Info("product index loaded", "count", len(products))
	return nil
}

// Reconcile handles one discovery record: unknown URLs are created,
// known ones get a price-and-date update. Incomplete records are a
// caller bug; they are rejected, never forwarded.
func (r *Reconciler) Reconcile(ctx context.Context, rec scraper.ProductRecord) (Outcome, error) {
	if !rec.IsComplete() {
		return Outcome{Action: ActionSkipped, Record: rec},
			fmt.Errorf("incomplete record for %q must not reach reconciliation", rec.URL)
	}

	rec.ParseDate = r.clampCapture(rec.URL, rec.ParseDate)

	r.mu.Lock()
	lastPrice, exists := r.known[rec.URL]
	r.mu.Unlock()

	action := ActionCreated
	if exists {
		action = ActionPriceUpdated
		if rec.Price == lastPrice {
			action = ActionUnchanged
		}
	}

	if r.dryRun {
		r.logger.Info("dry run, skipping backend call",
			"action", action, "url", rec.URL, "price", rec.Price)
		return Outcome{Action: action, Record: rec}, nil
	}

	var err error
	if exists {
		// Known URL: refresh price and capture date even when the price
		// did not move, so the catalog's parse_date stays current.
		err = r.backend.UpdatePrice(ctx, rec.URL, rec.Price, rec.ParseDate)
	} else {
		err = r.backend.AddProduct(ctx, rec)
	}
	if err != nil {
		return Outcome{Action: ActionSkipped, Record: rec}, err
	}

	r.mu.Lock()
	r.known[rec.URL] = rec.Price
	r.mu.Unlock()

	return Outcome{Action: action, Record: rec}, nil
}

// ReconcileRefresh handles one refresh check: sold-out products are
// reported unavailable and skipped; an update call is issued only when
// the freshly scraped price differs from the last known one.
func (r *Reconciler) ReconcileRefresh(ctx context.Context, ref ProductRef, currentPrice int, soldOut bool) (Outcome, error) {
	rec := scraper.ProductRecord{
		Name:      ref.Name,
		Price:     currentPrice,
		URL:       ref.URL,
		StoreID:   ref.StoreID,
		ParseDate: r.clampCapture(ref.URL, time.Now()),
	}

	if soldOut {
		r.logger.Warn("product unavailable, skipping update", "url", ref.URL, "name", ref.Name)
		return Outcome{Action: ActionSkipped, Record: rec}, nil
	}

	if currentPrice == scraper.PriceMissing {
		r.logger.Warn("price not found on product page", "url", ref.URL, "name", ref.Name)
		return Outcome{Action: ActionSkipped, Record: rec}, nil
	}

	if currentPrice == ref.LastKnownPrice {
		return Outcome{Action: ActionUnchanged, Record: rec}, nil
	}

	if r.dryRun {
		r.logger.Info("dry run, skipping price update",
			"url", ref.URL, "old_price", ref.LastKnownPrice, "new_price", currentPrice)
		return Outcome{Action: ActionPriceUpdated, Record: rec}, nil
	}

	if err := r.backend.UpdatePrice(ctx, ref.URL, currentPrice, rec.ParseDate); err != nil {
		return Outcome{Action: ActionSkipped, Record: rec}, err
	}

	r.mu.Lock()
	r.known[ref.URL] = currentPrice
	r.mu.Unlock()

	r.logger.Info("price updated",
		"url", ref.URL, "old_price", ref.LastKnownPrice, "new_price", currentPrice)
	return Outcome{Action: ActionPriceUpdated, Record: rec}, nil
}

// clampCapture keeps per-URL capture timestamps non-decreasing as
// reported to the backend.
func (r *Reconciler) clampCapture(url string, capturedAt time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastSeen[url]; ok && capturedAt.Before(last) {
		capturedAt = last
	}
	r.lastSeen[url] = capturedAt
	return capturedAt
}
