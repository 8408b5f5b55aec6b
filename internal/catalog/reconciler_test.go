package catalog

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

type fakeBackend struct {
	products  []Product
	adds      []scraper.ProductRecord
	updates   []priceUpdate
	addErr    error
	updateErr error
}

type priceUpdate struct {
	url       string
	price     int
	parseDate time.Time
}

func (f *fakeBackend) Products(context.Context) ([]Product, error) {
	return f.products, nil
}

func (f *fakeBackend) AddProduct(_ context.Context, rec scraper.ProductRecord) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.adds = append(f.adds, rec)
	return nil
}

func (f *fakeBackend) UpdatePrice(_ context.Context, url string, price int, parseDate time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, priceUpdate{url, price, parseDate})
	return nil
}

func completeRecord(url string, price int) scraper.ProductRecord {
	return scraper.ProductRecord{
		Name:       "Телевизор LG",
		Price:      price,
		Image:      "https://cdn/tv.jpg",
		URL:        url,
		StoreID:    1,
		CategoryID: 2,
		ParseDate:  time.Now(),
	}
}

func TestReconcileCreatesUnknownURL(t *testing.T) {
	backend := &fakeBackend{}
	r := NewReconciler(backend, false, slog.Default())
	require.NoError(t, r.LoadIndex(context.Background()))

	out, err := r.Reconcile(context.Background(), completeRecord("https://e.ru/tv", 29999))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Len(t, backend.adds, 1)
	assert.Empty(t, backend.updates)
}

func TestReconcileUpdatesKnownURL(t *testing.T) {
	backend := &fakeBackend{products: []Product{
		{URL: "https://e.ru/tv", Price: 29999, ParseDate: time.Now().Add(-time.Hour)},
	}}
	r := NewReconciler(backend, false, slog.Default())
	require.NoError(t, r.LoadIndex(context.Background()))

	out, err := r.Reconcile(context.Background(), completeRecord("https://e.ru/tv", 31999))
	require.NoError(t, err)
	assert.Equal(t, ActionPriceUpdated, out.Action)
	assert.Empty(t, backend.adds)
	require.Len(t, backend.updates, 1)
	assert.Equal(t, 31999, backend.updates[0].price)
}

func TestReconcileSamePriceStillRefreshesDate(t *testing.T) {
	backend := &fakeBackend{products: []Product{
		{URL: "https://e.ru/tv", Price: 29999, ParseDate: time.Now().Add(-time.Hour)},
	}}
	r := NewReconciler(backend, false, slog.Default())
	require.NoError(t, r.LoadIndex(context.Background()))

	out, err := r.Reconcile(context.Background(), completeRecord("https://e.ru/tv", 29999))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, out.Action)
	assert.Len(t, backend.updates, 1)
}

func TestReconcileRejectsIncompleteRecord(t *testing.T) {
	backend := &fakeBackend{}
	r := NewReconciler(backend, false, slog.Default())

	rec := completeRecord("https://e.ru/tv", 29999)
	rec.Price = scraper.PriceMissing

	out, err := r.Reconcile(context.Background(), rec)
	assert.Error(t, err)
	assert.Equal(t, ActionSkipped, out.Action)
	assert.Empty(t, backend.adds)
	assert.Empty(t, backend.updates)
}

func TestReconcileDryRunIssuesNoCalls(t *testing.T) {
	backend := &fakeBackend{}
	r := NewReconciler(backend, true, slog.Default())

	out, err := r.Reconcile(context.Background(), completeRecord("https://e.ru/tv", 29999))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Empty(t, backend.adds)
	assert.Empty(t, backend.updates)
}

func TestReconcileBackendFailureSurfaces(t *testing.T) {
	backend := &fakeBackend{addErr: errors.New("connection refused")}
	r := NewReconciler(backend, false, slog.Default())

	_, err := r.Reconcile(context.Background(), completeRecord("https://e.ru/tv", 29999))
	assert.Error(t, err)
}

func TestReconcileCaptureTimestampsNonDecreasing(t *testing.T) {
	backend := &fakeBackend{}
	r := NewReconciler(backend, false, slog.Default())

	later := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := completeRecord("https://e.ru/tv", 29999)
	first.ParseDate = later
	_, err := r.Reconcile(context.Background(), first)
	require.NoError(t, err)

	// A stale re-observation must not move the reported capture backwards.
	second := completeRecord("https://e.ru/tv", 31999)
	second.ParseDate = earlier
	out, err := r.Reconcile(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, out.Record.ParseDate.Before(later))
	require.Len(t, backend.updates, 1)
	assert.False(t, backend.updates[0].parseDate.Before(later))
}

func TestReconcileRefreshUpdatesOnlyOnChange(t *testing.T) {
	ref := ProductRef{URL: "https://e.ru/tv", StoreID: 1, Name: "ТВ", LastKnownPrice: 1000}

	t.Run("price changed", func(t *testing.T) {
		backend := &fakeBackend{}
		r := NewReconciler(backend, false, slog.Default())

		out, err := r.ReconcileRefresh(context.Background(), ref, 1200, false)
		require.NoError(t, err)
		assert.Equal(t, ActionPriceUpdated, out.Action)
		require.Len(t, backend.updates, 1)
		assert.Equal(t, 1200, backend.updates[0].price)
	})

	t.Run("price unchanged", func(t *testing.T) {
		backend := &fakeBackend{}
		r := NewReconciler(backend, false, slog.Default())

		out, err := r.ReconcileRefresh(context.Background(), ref, 1000, false)
		require.NoError(t, err)
		assert.Equal(t, ActionUnchanged, out.Action)
		assert.Empty(t, backend.updates)
	})

	t.Run("sold out", func(t *testing.T) {
		backend := &fakeBackend{}
		r := NewReconciler(backend, false, slog.Default())

		out, err := r.ReconcileRefresh(context.Background(), ref, 1200, true)
		require.NoError(t, err)
		assert.Equal(t, ActionSkipped, out.Action)
		assert.Empty(t, backend.updates)
	})

	t.Run("price missing", func(t *testing.T) {
		backend := &fakeBackend{}
		r := NewReconciler(backend, false, slog.Default())

		out, err := r.ReconcileRefresh(context.Background(), ref, scraper.PriceMissing, false)
		require.NoError(t, err)
		assert.Equal(t, ActionSkipped, out.Action)
		assert.Empty(t, backend.updates)
	})

	t.Run("backend 404 fails the task", func(t *testing.T) {
		backend := &fakeBackend{updateErr: ErrUnknownProduct}
		r := NewReconciler(backend, false, slog.Default())

		_, err := r.ReconcileRefresh(context.Background(), ref, 1200, false)
		assert.ErrorIs(t, err, ErrUnknownProduct)
	})
}
