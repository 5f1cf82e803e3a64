package api

import (
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/domain/address"
)

// decodeAddress reads an address in any supported legacy shape.
func decodeAddress(w http.ResponseWriter, r *http.Request) (address.Input, error) {
	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil {
		return address.Input{}, err
	}
	return address.Normalize(raw), nil
}

func (h *Handlers) ListAddresses(w http.ResponseWriter, r *http.Request) {
	book, err := h.svc.Addresses.Get(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	addresses := book.Addresses
	if addresses == nil {
		addresses = []address.Address{}
	}
	respondJSON(w, http.StatusOK, addresses)
}

func (h *Handlers) AddAddress(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAddress(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a, err := h.svc.Addresses.Add(r.Context(), middleware.CustomerID(r.Context()), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (h *Handlers) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAddress(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a, err := h.svc.Addresses.Update(r.Context(), middleware.CustomerID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handlers) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Addresses.Remove(r.Context(), middleware.CustomerID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Address removed")
}

func (h *Handlers) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Addresses.SetDefault(r.Context(), middleware.CustomerID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Default address updated")
}
