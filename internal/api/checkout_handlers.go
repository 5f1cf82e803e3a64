package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/session"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

type cardRequest struct {
	CardHolder  string `json:"cardHolder"`
	CardNumber  string `json:"cardNumber"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CVV         string `json:"cvv"`
}

func (c *cardRequest) toCard() *payment.Card {
	if c == nil {
		return nil
	}
	return &payment.Card{
		HolderName:  strings.TrimSpace(c.CardHolder),
		Number:      payment.NormalizeCardNumber(c.CardNumber),
		ExpireMonth: strings.TrimSpace(c.ExpiryMonth),
		ExpireYear:  strings.TrimSpace(c.ExpiryYear),
		CVC:         strings.TrimSpace(c.CVV),
	}
}

type sessionResponse struct {
	SelectedAddressID string         `json:"selectedAddressId"`
	BillingAddressID  string         `json:"billingAddressId,omitempty"`
	PaymentMethod     string         `json:"paymentMethod"`
	CheckoutToken     string         `json:"checkoutToken"`
	ItemCount         int            `json:"itemCount"`
	Estimate          pricing.Totals `json:"estimate"`
}

func (h *Handlers) sessionView(r *http.Request, state *session.State) (sessionResponse, error) {
	c, err := h.svc.Carts.Get(r.Context(), state.CustomerID)
	if err != nil {
		return sessionResponse{}, err
	}
	method := state.PaymentMethod
	if method == "" {
		method = string(checkout.DefaultMethod)
	}
	return sessionResponse{
		SelectedAddressID: state.SelectedAddressID,
		BillingAddressID:  state.BillingAddressID,
		PaymentMethod:     method,
		CheckoutToken:     state.CheckoutToken,
		ItemCount:         c.ItemCount(),
		Estimate:          h.svc.Checkout.Estimate(c),
	}, nil
}

// GetCheckoutSession returns the customer's selections. Without a stored
// address selection the default address is preselected.
func (h *Handlers) GetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.CustomerID(r.Context())
	state, err := h.svc.Sessions.Get(r.Context(), customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if state.SelectedAddressID == "" {
		book, err := h.svc.Addresses.Get(r.Context(), customerID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if def, ok := book.Default(); ok {
			state.SelectedAddressID = def.ID
		}
	}

	view, err := h.sessionView(r, state)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// UpdateCheckoutSession changes the fields present in the body and stores
// the whole session document again.
func (h *Handlers) UpdateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SelectedAddressID *string `json:"selectedAddressId"`
		BillingAddressID  *string `json:"billingAddressId"`
		PaymentMethod     *string `json:"paymentMethod"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := r.Context()
	customerID := middleware.CustomerID(ctx)
	state, err := h.svc.Sessions.Get(ctx, customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if req.SelectedAddressID != nil {
		id := strings.TrimSpace(*req.SelectedAddressID)
		if id != "" {
			if _, err := h.svc.Addresses.Find(ctx, customerID, id); err != nil {
				respondError(w, r, err)
				return
			}
		}
		state.SelectedAddressID = id
	}
	if req.BillingAddressID != nil {
		id := strings.TrimSpace(*req.BillingAddressID)
		if id != "" {
			if _, err := h.svc.Addresses.Find(ctx, customerID, id); err != nil {
				respondError(w, r, err)
				return
			}
		}
		state.BillingAddressID = id
	}
	if req.PaymentMethod != nil {
		m, err := checkout.SelectPaymentMethod(*req.PaymentMethod)
		if err != nil {
			respondError(w, r, err)
			return
		}
		state.PaymentMethod = string(m)
	}
	state.UpdatedAt = time.Now().UTC()

	if err := h.svc.Sessions.Save(ctx, state); err != nil {
		respondError(w, r, err)
		return
	}
	view, err := h.sessionView(r, state)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// SubmitCheckout places the order for the current cart and session.
func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes  string       `json:"notes"`
		Card   *cardRequest `json:"card"`
		Use3DS bool         `json:"use3DS"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.svc.Checkout.Submit(r.Context(), checkout.SubmitInput{
		CustomerID:     middleware.CustomerID(r.Context()),
		IP:             middleware.ClientIP(r),
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
		Notes:          req.Notes,
		Card:           req.Card.toCard(),
		Use3DS:         req.Use3DS,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *Handlers) VerifyThreeDS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID   string `json:"orderId"`
		PaymentID string `json:"paymentId"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.svc.Checkout.VerifyThreeDSCode(r.Context(),
		middleware.CustomerID(r.Context()), middleware.ClientIP(r), req.OrderID, req.PaymentID, req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
