package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-management.git/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ProductStore is what the product surface needs; satisfied by the pgx
// ProductRepo and by the in-memory store.
type ProductStore interface {
	ListProducts(ctx context.Context, search string) ([]orders.Product, error)
	GetProduct(ctx context.Context, id string) (*orders.Product, error)
	CreateProduct(ctx context.Context, p *orders.Product) error
	UpdateProduct(ctx context.Context, p *orders.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type ProductsHandler struct {
	Store ProductStore
}

type ProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products", h.createProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Mutations are staff only; the catalog belongs to the back office.
func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}
	if !p.Staff {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff only"})
		return
	}
	req, err := decodeProduct(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	prod := &orders.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	if err := h.Store.CreateProduct(ctx, prod); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, prod)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}
	if !p.Staff {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff only"})
		return
	}
	req, err := decodeProduct(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	prod := &orders.Product{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	if err := h.Store.UpdateProduct(ctx, prod); err != nil {
		var nf *orders.ProductNotFoundError
		if errors.As(err, &nf) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prod)
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}
	if !p.Staff {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff only"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		var nf *orders.ProductNotFoundError
		if errors.As(err, &nf) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeProduct(r *http.Request) (ProductReq, error) {
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errInvalidJSON
	}
	if req.Name == "" {
		return req, errMissingName
	}
	if req.Price.IsNegative() {
		return req, errNegativePrice
	}
	if req.Quantity < 0 {
		return req, errNegativeStock
	}
	return req, nil
}

var (
	errInvalidJSON   = errors.New("invalid json")
	errMissingName   = errors.New("name is required")
	errNegativePrice = errors.New("price must be >= 0")
	errNegativeStock = errors.New("quantity must be >= 0")
)
