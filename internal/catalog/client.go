package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

var (
	ErrUnknownProduct = errors.New("product unknown to backend")
	ErrBadRequest     = errors.New("backend rejected request")
)

// Client talks to the catalog backend over its JSON HTTP contract.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "catalog_client"),
	}
}

// Categories fetches scrape targets for a store; categoryID of zero
// means all categories of the store.
func (c *Client) Categories(ctx context.Context, storeID, categoryID int) ([]Category, error) {
	query := url.Values{"store_id": {strconv.Itoa(storeID)}}
	if categoryID > 0 {
		query.Set("categoryId", strconv.Itoa(categoryID))
	}

	var categories []Category
	if err := c.getJSON(ctx, "/api/getAllCategories?"+query.Encode(), &categories); err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return categories, nil
}

// Products fetches the full current catalog.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.getJSON(ctx, "/api/getProducts", &products); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

// AddProduct inserts a new catalog entry. The backend also records the
// initial price-history entry.
func (c *Client) AddProduct(ctx context.Context, rec scraper.ProductRecord) error {
	body := map[string]any{"productData": rec}
	if err := c.postJSON(ctx, "/api/addNewProduct", body); err != nil {
		return fmt.Errorf("failed to add product %s: %w", rec.URL, err)
	}
	return nil
}

// UpdatePrice updates price and capture date for a known URL. Returns
// ErrUnknownProduct when the backend does not know the URL.
func (c *Client) UpdatePrice(ctx context.Context, productURL string, price int, parseDate time.Time) error {
	body := map[string]any{
		"productData": map[string]any{
			"url":        productURL,
			"price":      price,
			"parse_date": parseDate.Format(time.RFC3339),
		},
	}
	if err := c.postJSON(ctx, "/api/updateProductData", body); err != nil {
		return fmt.Errorf("failed to update price for %s: %w", productURL, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrUnknownProduct
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, snippet)
	}
}
