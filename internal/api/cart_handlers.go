package api

import (
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

type cartResponse struct {
	Items     []cart.Item    `json:"items"`
	ItemCount int            `json:"itemCount"`
	Estimate  pricing.Totals `json:"estimate"`
}

func (h *Handlers) cartView(c *cart.Cart) cartResponse {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	return cartResponse{Items: items, ItemCount: c.ItemCount(), Estimate: h.svc.Checkout.Estimate(c)}
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Carts.Get(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(c))
}

// AddToCart accepts the loosely typed payload browsers send: price and
// quantity may arrive as numbers or strings and are coerced.
func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var price *decimal.Decimal
	if raw, ok := req["price"]; ok && raw != nil {
		p := pricing.CoercePrice(raw)
		price = &p
	}
	productID := stringField(req, "productId", "product_id", "id")
	c, err := h.svc.Commands.AddToCart(r.Context(), command.AddToCart{
		CustomerID: middleware.CustomerID(r.Context()),
		ProductID:  productID,
		Name:       stringField(req, "name"),
		Price:      price,
		Quantity:   pricing.CoerceQuantity(req["quantity"]),
		Image:      stringField(req, "image"),
		Variants:   variantsField(req["variants"]),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(c))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.svc.Commands.UpdateCartItem(r.Context(), command.UpdateCartItem{
		CustomerID: middleware.CustomerID(r.Context()),
		LineKey:    r.PathValue("key"),
		Quantity:   req.Quantity,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(c))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Commands.RemoveFromCart(r.Context(), command.RemoveFromCart{
		CustomerID: middleware.CustomerID(r.Context()),
		LineKey:    r.PathValue("key"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(c))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Commands.ClearCart(r.Context(), command.ClearCart{CustomerID: middleware.CustomerID(r.Context())}); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Cart cleared")
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func variantsField(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}
