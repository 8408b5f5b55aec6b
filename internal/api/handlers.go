// Package api exposes the catalog over HTTP for the scraper and for
// frontend consumers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pricewatch/storefront-scraper/internal/catalog"
	"github.com/pricewatch/storefront-scraper/internal/database"
)

// Store is the slice of the database layer the handlers need.
type Store interface {
	Categories(ctx context.Context, storeID, categoryID int) ([]catalog.Category, error)
	CategoryCount(ctx context.Context, storeID int) (int, error)
	Products(ctx context.Context, storeID, categoryID int) ([]catalog.Product, error)
	ProductIDByURL(ctx context.Context, productURL string) (int, error)
	StoreIDByName(ctx context.Context, name string) (int, error)
	CategoryIDByName(ctx context.Context, name string) (int, error)
	UpsertProduct(ctx context.Context, p catalog.Product) (int, bool, error)
	UpdateProductPrice(ctx context.Context, productURL string, price int, parseDate time.Time) error
	PriceHistory(ctx context.Context, productID int) ([]database.PricePoint, error)
}

type Handlers struct {
	store  Store
	logger *slog.Logger
}

func NewHandlers(store Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: logger.With("component", "api"),
	}
}

// Routes mounts all catalog endpoints on a router.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/api/getAllCategories", h.GetAllCategories)
	r.Get("/api/checkProductDate", h.GetCategoryCount)
	r.Get("/api/getProducts", h.GetProducts)
	r.Get("/api/getProductsQuery", h.GetProductsQuery)
	r.Get("/api/getProductID", h.GetProductID)
	r.Post("/api/addNewProduct", h.AddNewProduct)
	r.Post("/api/updateProductData", h.UpdateProductData)
	r.Get("/api/products/{productID}/price-history", h.GetPriceHistory)
}

// GetAllCategories returns scrape targets, optionally filtered by
// store_id and categoryId query parameters.
func (h *Handlers) GetAllCategories(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id")
	categoryID := queryInt(r, "categoryId")

	categories, err := h.store.Categories(r.Context(), storeID, categoryID)
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	h.respondJSON(w, http.StatusOK, categories)
}

// GetCategoryCount returns how many categories a store has. The store id
// is mandatory.
func (h *Handlers) GetCategoryCount(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id")
	if storeID == 0 {
		h.respondError(w, http.StatusBadRequest, "store_id is required")
		return
	}

	count, err := h.store.CategoryCount(r.Context(), storeID)
	if err != nil {
		h.logger.Error("failed to count categories", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to count categories")
		return
	}
	h.respondJSON(w, http.StatusOK, count)
}

// GetProducts returns the full catalog.
func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Products(r.Context(), 0, 0)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// GetProductsQuery returns products filtered by store and category
// display names. A category name of "all" matches every category.
func (h *Handlers) GetProductsQuery(w http.ResponseWriter, r *http.Request) {
	storeName := r.URL.Query().Get("store_name")
	categoryName := r.URL.Query().Get("category_name")
	if storeName == "" || categoryName == "" {
		h.respondError(w, http.StatusBadRequest, "store_name and category_name are required")
		return
	}

	storeID, err := h.store.StoreIDByName(r.Context(), storeName)
	if errors.Is(err, database.ErrStoreNotFound) {
		h.respondError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve store", "store", storeName, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to resolve store")
		return
	}

	categoryID := 0
	if !strings.EqualFold(categoryName, "all") {
		categoryID, err = h.store.CategoryIDByName(r.Context(), categoryName)
		if errors.Is(err, database.ErrCategoryNotFound) {
			h.respondError(w, http.StatusNotFound, "category not found")
			return
		}
		if err != nil {
			h.logger.Error("failed to resolve category", "category", categoryName, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to resolve category")
			return
		}
	}

	products, err := h.store.Products(r.Context(), storeID, categoryID)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// GetProductID resolves a product's id by its URL.
func (h *Handlers) GetProductID(w http.ResponseWriter, r *http.Request) {
	productURL := r.URL.Query().Get("url")
	if productURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	id, err := h.store.ProductIDByURL(r.Context(), productURL)
	if errors.Is(err, database.ErrProductNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve product", "url", productURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to resolve product")
		return
	}
	h.respondJSON(w, http.StatusOK, id)
}

// ProductPayload wraps a product for the mutation endpoints.
type ProductPayload struct {
	ProductData *catalog.Product `json:"productData"`
}

// AddNewProduct inserts a scraped product. A URL already in the catalog
// gets its price refreshed instead of a duplicate row.
func (h *Handlers) AddNewProduct(w http.ResponseWriter, r *http.Request) {
	var payload ProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ProductData == nil {
		h.respondError(w, http.StatusBadRequest, "product data is required")
		return
	}

	p := *payload.ProductData
	if p.ParseDate.IsZero() {
		p.ParseDate = time.Now().UTC()
	}

	id, created, err := h.store.UpsertProduct(r.Context(), p)
	if err != nil {
		h.logger.Error("failed to upsert product", "url", p.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to add product")
		return
	}

	if created {
		h.logger.Info("product added", "id", id, "url", p.URL)
	} else {
		h.logger.Info("product already known, price refreshed", "id", id, "url", p.URL)
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"id": id})
}

// UpdateProductData refreshes the price of a known product. Unknown
// URLs are a 404 so the scraper can fall back to creation.
func (h *Handlers) UpdateProductData(w http.ResponseWriter, r *http.Request) {
	var payload ProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ProductData == nil {
		h.respondError(w, http.StatusBadRequest, "product data is required")
		return
	}

	p := payload.ProductData
	if p.ParseDate.IsZero() {
		p.ParseDate = time.Now().UTC()
	}

	err := h.store.UpdateProductPrice(r.Context(), p.URL, p.Price, p.ParseDate)
	if errors.Is(err, database.ErrProductNotFound) {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update product", "url", p.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update product")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "product updated"})
}

// GetPriceHistory returns all price samples for a product, oldest first.
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	history, err := h.store.PriceHistory(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to load price history", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}
	if len(history) == 0 {
		h.respondError(w, http.StatusNotFound, "price history not found for this product")
		return
	}
	h.respondJSON(w, http.StatusOK, history)
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
