package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/storefront-scraper/internal/catalog"
)

// setupTestDB connects to the database named by TEST_DATABASE_* and
// skips the test when none is configured. The schema from schema.sql
// must already be applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("Test database not configured")
	}

	db, err := New(context.Background(), Config{
		Host:     host,
		Port:     5432,
		User:     os.Getenv("TEST_DATABASE_USER"),
		Password: os.Getenv("TEST_DATABASE_PASSWORD"),
		Database: os.Getenv("TEST_DATABASE_NAME"),
		MaxConns: 4,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func testProduct() catalog.Product {
	return catalog.Product{
		Name:       "Телевизор LG",
		Price:      29999,
		Image:      "https://cdn.example.com/tv.jpg",
		URL:        "https://www.eldorado.ru/p/" + uuid.New().String(),
		StoreID:    1,
		CategoryID: 1,
		ParseDate:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestUpsertProduct(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	p := testProduct()

	id, created, err := db.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, id)

	// same URL again: price refresh, not a new row
	p.Price = 24999
	p.ParseDate = p.ParseDate.Add(time.Hour)
	id2, created, err := db.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	history, err := db.PriceHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 29999, history[0].Price)
	assert.Equal(t, 24999, history[1].Price)
}

func TestUpdateProductPrice(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	p := testProduct()
	id, _, err := db.UpsertProduct(ctx, p)
	require.NoError(t, err)

	err = db.UpdateProductPrice(ctx, p.URL, 19999, p.ParseDate.Add(time.Hour))
	require.NoError(t, err)

	products, err := db.Products(ctx, p.StoreID, p.CategoryID)
	require.NoError(t, err)
	for _, got := range products {
		if got.ID == id {
			assert.Equal(t, 19999, got.Price)
			return
		}
	}
	t.Fatalf("product %d not found after update", id)
}

func TestProductsCategoryOnlyFilter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	p := testProduct()
	p.CategoryID = 2
	id, _, err := db.UpsertProduct(ctx, p)
	require.NoError(t, err)

	// category filter without a store filter still applies
	products, err := db.Products(ctx, 0, 2)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	found := false
	for _, got := range products {
		assert.Equal(t, 2, got.CategoryID)
		if got.ID == id {
			found = true
		}
	}
	assert.True(t, found, "product %d missing from category filter", id)

	other, err := db.Products(ctx, 0, 1)
	require.NoError(t, err)
	for _, got := range other {
		assert.NotEqual(t, id, got.ID)
	}
}

func TestUpdateProductPriceUnknownURL(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	err := db.UpdateProductPrice(ctx,
		fmt.Sprintf("https://www.eldorado.ru/p/%s", uuid.New()), 100, time.Now())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductIDByURLUnknown(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, err := db.ProductIDByURL(ctx, "https://www.eldorado.ru/p/does-not-exist")
	assert.ErrorIs(t, err, ErrProductNotFound)
}
