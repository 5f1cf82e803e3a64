package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/session"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Services are the application services behind the storefront handlers.
type Services struct {
	Commands  *command.Handler
	Queries   *query.Handler
	Carts     *cart.Service
	Addresses *address.Service
	Sessions  session.Store
	Checkout  *checkout.Workflow
	Payments  *payment.Service
}

type Handlers struct {
	svc Services
}

func NewHandlers(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

// Product Handlers

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Stock       int             `json:"stock"`
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Queries.ListProducts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Queries.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.svc.Commands.CreateProduct(r.Context(), command.CreateProduct{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Images:      req.Images,
		Stock:       req.Stock,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.svc.Commands.UpdateProduct(r.Context(), command.UpdateProduct{
		ProductID:   r.PathValue("id"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Images:      req.Images,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Commands.DeleteProduct(r.Context(), command.DeleteProduct{ProductID: r.PathValue("id")}); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Product deleted")
}

func (h *Handlers) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	inv, err := h.svc.Commands.RestockProduct(r.Context(), command.RestockProduct{
		ProductID: r.PathValue("id"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"productId": r.PathValue("id"), "stock": inv.Stock})
}

// Helper functions

// decodeJSON rejects malformed bodies. An empty body decodes to the zero
// value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func viewer(r *http.Request) query.Viewer {
	return query.Viewer{
		CustomerID: middleware.CustomerID(r.Context()),
		IsAdmin:    middleware.IsAdmin(r.Context()),
	}
}

func requester(r *http.Request) payment.Requester {
	return payment.Requester{
		CustomerID: middleware.CustomerID(r.Context()),
		IsAdmin:    middleware.IsAdmin(r.Context()),
		IP:         middleware.ClientIP(r),
	}
}
