package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pricewatch/storefront-scraper/internal/catalog"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrStoreNotFound    = errors.New("store not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// PricePoint is one price-history sample for a product.
type PricePoint struct {
	Price     int       `json:"price"`
	ParseDate time.Time `json:"parse_date"`
}

// Categories returns scrape targets. A zero storeID or categoryID means
// no filter on that column.
func (db *DB) Categories(ctx context.Context, storeID, categoryID int) ([]catalog.Category, error) {
	query := `SELECT id, name, url, store_id FROM categories`
	var args []interface{}
	switch {
	case storeID > 0 && categoryID > 0:
		query += ` WHERE store_id = $1 AND id = $2`
		args = append(args, storeID, categoryID)
	case storeID > 0:
		query += ` WHERE store_id = $1`
		args = append(args, storeID)
	case categoryID > 0:
		query += ` WHERE id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY id`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.Category
	for rows.Next() {
		var cat catalog.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.URL, &cat.StoreID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// CategoryCount returns how many categories a store has.
func (db *DB) CategoryCount(ctx context.Context, storeID int) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM categories WHERE store_id = $1`, storeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return count, nil
}

// Products returns the full catalog, optionally filtered by store and
// category (zero means no filter).
func (db *DB) Products(ctx context.Context, storeID, categoryID int) ([]catalog.Product, error) {
	query := `SELECT id, name, price, image, url, store_id, category_id, parse_date FROM products`
	var args []interface{}
	switch {
	case storeID > 0 && categoryID > 0:
		query += ` WHERE store_id = $1 AND category_id = $2`
		args = append(args, storeID, categoryID)
	case storeID > 0:
		query += ` WHERE store_id = $1`
		args = append(args, storeID)
	case categoryID > 0:
		query += ` WHERE category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY id`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.URL, &p.StoreID, &p.CategoryID, &p.ParseDate); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ProductIDByURL resolves a product's id by its URL, the catalog's
// natural key.
func (db *DB) ProductIDByURL(ctx context.Context, productURL string) (int, error) {
	var id int
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM products WHERE url = $1`, productURL,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve product by url: %w", err)
	}
	return id, nil
}

// StoreIDByName resolves a store id from its display name.
func (db *DB) StoreIDByName(ctx context.Context, name string) (int, error) {
	var id int
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM stores WHERE name = $1`, name,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, ErrStoreNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve store by name: %w", err)
	}
	return id, nil
}

// CategoryIDByName resolves a category id from its display name.
func (db *DB) CategoryIDByName(ctx context.Context, name string) (int, error) {
	var id int
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1`, name,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, ErrCategoryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve category by name: %w", err)
	}
	return id, nil
}

// UpsertProduct inserts a scraped product or, when its URL is already
// known, updates price and parse_date. Each call appends a parse_log
// row in the same transaction so price history never misses a sample.
// Returns the product id and whether a new row was created.
func (db *DB) UpsertProduct(ctx context.Context, p catalog.Product) (int, bool, error) {
	var id int
	created := false
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id FROM products WHERE url = $1`, p.URL).Scan(&id)
		switch err {
		case nil:
			if _, err := tx.Exec(ctx,
				`UPDATE products SET price = $1, parse_date = $2 WHERE id = $3`,
				p.Price, p.ParseDate, id,
			); err != nil {
				return fmt.Errorf("failed to update product: %w", err)
			}
		case pgx.ErrNoRows:
			created = true
			if err := tx.QueryRow(ctx,
				`INSERT INTO products (name, price, image, url, store_id, category_id, parse_date)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				p.Name, p.Price, p.Image, p.URL, p.StoreID, p.CategoryID, p.ParseDate,
			).Scan(&id); err != nil {
				return fmt.Errorf("failed to insert product: %w", err)
			}
		default:
			return fmt.Errorf("failed to check product existence: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO parse_log (product_id, price, parse_date) VALUES ($1, $2, $3)`,
			id, p.Price, p.ParseDate,
		); err != nil {
			return fmt.Errorf("failed to append parse log: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

// UpdateProductPrice updates price and parse_date of a known product,
// appending a parse_log row in the same transaction. Returns
// ErrProductNotFound when the URL is not in the catalog.
func (db *DB) UpdateProductPrice(ctx context.Context, productURL string, price int, parseDate time.Time) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		var id int
		err := tx.QueryRow(ctx, `SELECT id FROM products WHERE url = $1`, productURL).Scan(&id)
		if err == pgx.ErrNoRows {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to resolve product by url: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE products SET price = $1, parse_date = $2 WHERE id = $3`,
			price, parseDate, id,
		); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO parse_log (product_id, price, parse_date) VALUES ($1, $2, $3)`,
			id, price, parseDate,
		); err != nil {
			return fmt.Errorf("failed to append parse log: %w", err)
		}
		return nil
	})
}

// PriceHistory returns all recorded price samples for a product, oldest
// first.
func (db *DB) PriceHistory(ctx context.Context, productID int) ([]PricePoint, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT price, parse_date FROM parse_log WHERE product_id = $1 ORDER BY parse_date ASC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var history []PricePoint
	for rows.Next() {
		var point PricePoint
		if err := rows.Scan(&point.Price, &point.ParseDate); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		history = append(history, point)
	}
	return history, rows.Err()
}
