package api

import (
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/order"
)

type orderLineRequest struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant"`
}

// PlaceOrder creates an order from an explicit item list. Prices and totals
// in the body are ignored; the order is priced from live product data.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items           []orderLineRequest `json:"items"`
		ShippingAddress map[string]any     `json:"shippingAddress"`
		BillingAddress  map[string]any     `json:"billingAddress"`
		PaymentMethod   string             `json:"paymentMethod"`
		Notes           string             `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	shipping, err := address.Normalize(req.ShippingAddress).Snapshot()
	if err != nil {
		respondError(w, r, err)
		return
	}
	var billing *address.Address
	if len(req.BillingAddress) > 0 {
		b, err := address.Normalize(req.BillingAddress).Snapshot()
		if err != nil {
			respondError(w, r, err)
			return
		}
		billing = &b
	}
	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, r, err)
		return
	}

	lines := make([]command.OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, command.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, Variant: it.Variant})
	}

	o, err := h.svc.Commands.CreateOrder(r.Context(), command.CreateOrder{
		CustomerID:      middleware.CustomerID(r.Context()),
		Items:           lines,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		PaymentMethod:   method,
		Notes:           req.Notes,
		IdempotencyKey:  r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Queries.ListOrdersByCustomer(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Queries.GetOrder(r.Context(), viewer(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Queries.GetOrderStatus(r.Context(), viewer(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Admin Handlers

// ListAllOrders accepts an optional ?status= filter.
func (h *Handlers) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Queries.ListAllOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"trackingNumber"`
		Reason         string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.svc.Commands.UpdateOrderStatus(r.Context(), command.UpdateOrderStatus{
		OrderID:        r.PathValue("id"),
		Status:         status,
		TrackingNumber: req.TrackingNumber,
		Reason:         req.Reason,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
