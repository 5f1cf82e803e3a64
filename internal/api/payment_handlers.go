package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/shopspring/decimal"
)

type paymentRequest struct {
	OrderID string       `json:"orderId"`
	Card    *cardRequest `json:"card"`
}

// decodePayment reads and validates the card before any gateway call.
func decodePayment(w http.ResponseWriter, r *http.Request) (string, payment.Card, error) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", payment.Card{}, err
	}
	card := req.Card.toCard()
	if err := checkout.ValidateForMethod(checkout.DefaultMethod, card, time.Now()); err != nil {
		return "", payment.Card{}, err
	}
	return req.OrderID, *card, nil
}

func (h *Handlers) InitializePayment(w http.ResponseWriter, r *http.Request) {
	orderID, card, err := decodePayment(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.svc.Payments.Initialize(r.Context(), requester(r), orderID, card)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) Initialize3DPayment(w http.ResponseWriter, r *http.Request) {
	orderID, card, err := decodePayment(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.svc.Payments.Initialize3D(r.Context(), requester(r), orderID, card)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// readCallback accepts the gateway's form post as well as JSON.
func readCallback(r *http.Request) (payment.CallbackPayload, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			PaymentID        string `json:"paymentId"`
			ConversationID   string `json:"conversationId"`
			Status           string `json:"status"`
			ConversationData string `json:"conversationData"`
			Hash             string `json:"hash"`
			ErrorMessage     string `json:"errorMessage"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return payment.CallbackPayload{}, fmt.Errorf("%w: %v", payment.ErrInvalidCallback, err)
		}
		return payment.CallbackPayload(body), nil
	}
	if err := r.ParseForm(); err != nil {
		return payment.CallbackPayload{}, fmt.Errorf("%w: %v", payment.ErrInvalidCallback, err)
	}
	return payment.CallbackPayload{
		PaymentID:        r.PostFormValue("paymentId"),
		ConversationID:   r.PostFormValue("conversationId"),
		Status:           r.PostFormValue("status"),
		ConversationData: r.PostFormValue("conversationData"),
		Hash:             r.PostFormValue("hash"),
		ErrorMessage:     r.PostFormValue("errorMessage"),
	}, nil
}

// PaymentCallback handles the gateway's notification of a direct payment
// and sends the browser on to the result page. The checkout that started
// a direct payment has already cleared the cart.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, h.svc.Payments.ProcessCallback, false)
}

// ThreeDSCallback completes a 3-D Secure payment. On success the customer's
// checkout is finished the same way as a direct payment.
func (h *Handlers) ThreeDSCallback(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, h.svc.Payments.Process3DCallback, true)
}

func (h *Handlers) callback(w http.ResponseWriter, r *http.Request, process func(context.Context, payment.CallbackPayload) (*payment.CallbackOutcome, error), finishCheckout bool) {
	p, err := readCallback(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	outcome, err := process(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if finishCheckout && outcome.Success && outcome.CustomerID != "" {
		if err := h.svc.Checkout.Finalize(r.Context(), outcome.CustomerID, outcome.OrderID); err != nil {
			logging.FromCtx(r.Context()).Warn("finish checkout after payment callback", "order_id", outcome.OrderID, "err", err)
		}
	}
	http.Redirect(w, r, outcome.RedirectURL, http.StatusSeeOther)
}

// RefundPayment refunds a paid order. A missing or zero amount refunds the
// full total.
func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.svc.Payments.Refund(r.Context(), requester(r), r.PathValue("id"), req.Amount, strings.TrimSpace(req.Reason))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
