// Package simulated is an in-process payment gateway for development and
// tests. It declines a fixed set of test cards and accepts any 6-digit
// 3-D Secure code.
package simulated

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sync"
	"time"

	"github.com/example/ec-checkout/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const Name = "simulated"

// Test cards that are always declined, with the decline reason.
var DeclinedCards = map[string]string{
	"4000000000000002": "card declined",
	"4000000000009995": "insufficient funds",
	"5406670000000009": "card reported lost",
}

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

type authorization struct {
	conversationID string
	orderNumber    string
	lastFour       string
	brand          string
	paid           decimal.Decimal

	// amount is what is left to refund.
	amount    decimal.Decimal
	completed bool
}

func (a *authorization) result(paymentID string) *payment.Result {
	return &payment.Result{
		PaymentID:      paymentID,
		ConversationID: a.conversationID,
		OrderNumber:    a.orderNumber,
		PaidPrice:      a.paid,
		LastFourDigits: a.lastFour,
		CardBrand:      a.brand,
	}
}

type Gateway struct {
	secret  string
	latency time.Duration

	mu       sync.Mutex
	payments map[string]*authorization
}

func New(secret string, latency time.Duration) *Gateway {
	return &Gateway{
		secret:   secret,
		latency:  latency,
		payments: make(map[string]*authorization),
	}
}

func (g *Gateway) Name() string { return Name }

// AcceptsChallengeCode is true: any 6-digit code completes a challenge.
func (g *Gateway) AcceptsChallengeCode() bool { return true }

func (g *Gateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return nil
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Gateway) check(req payment.AuthorizeRequest) error {
	number := payment.NormalizeCardNumber(req.Card.Number)
	if reason, ok := DeclinedCards[number]; ok {
		return &payment.GatewayError{Code: "declined", Message: reason}
	}
	if !req.PaidPrice.IsPositive() {
		return &payment.GatewayError{Code: "invalid_amount", Message: "amount must be positive"}
	}
	return nil
}

func (g *Gateway) record(req payment.AuthorizeRequest, completed bool) (string, *authorization) {
	auth := &authorization{
		conversationID: req.ConversationID,
		orderNumber:    req.OrderNumber,
		lastFour:       payment.LastFour(req.Card.Number),
		brand:          payment.CardBrand(req.Card.Number),
		paid:           req.PaidPrice,
		amount:         req.PaidPrice,
		completed:      completed,
	}
	id := uuid.New().String()

	g.mu.Lock()
	g.payments[id] = auth
	g.mu.Unlock()
	return id, auth
}

func (g *Gateway) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if err := g.check(req); err != nil {
		return nil, err
	}
	id, auth := g.record(req, true)
	return auth.result(id), nil
}

// Initialize3DS returns a page that posts a signed success callback.
func (g *Gateway) Initialize3DS(ctx context.Context, req payment.AuthorizeRequest, callbackURL string) (*payment.ThreeDSResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if err := g.check(req); err != nil {
		return nil, err
	}
	id, auth := g.record(req, false)

	cb := payment.CallbackPayload{
		PaymentID:        id,
		ConversationID:   auth.conversationID,
		Status:           payment.StatusSuccess,
		ConversationData: "000000",
	}
	cb.Hash = payment.CallbackHash(g.secret, cb)

	return &payment.ThreeDSResult{
		PaymentID:      id,
		ConversationID: auth.conversationID,
		HTMLContent:    challengePage(callbackURL, cb),
	}, nil
}

func (g *Gateway) Complete3DS(ctx context.Context, paymentID, conversationData string) (*payment.Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if !codePattern.MatchString(conversationData) {
		return nil, &payment.GatewayError{Code: "invalid_3ds_code", Message: "verification code must be 6 digits"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	auth, ok := g.payments[paymentID]
	if !ok {
		return nil, &payment.GatewayError{Code: "not_found", Message: "payment not found"}
	}
	auth.completed = true
	return auth.result(paymentID), nil
}

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	auth, ok := g.payments[req.PaymentID]
	if !ok || !auth.completed {
		return nil, &payment.GatewayError{Code: "not_found", Message: "payment not found"}
	}
	if req.Amount.GreaterThan(auth.amount) {
		return nil, &payment.GatewayError{Code: "invalid_amount", Message: "refund exceeds captured amount"}
	}
	auth.amount = auth.amount.Sub(req.Amount)
	return &payment.RefundResult{
		RefundID:  uuid.New().String(),
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
	}, nil
}

func (g *Gateway) VerifyCallback(p payment.CallbackPayload) bool {
	return payment.VerifyCallbackHash(g.secret, p)
}

func challengePage(callbackURL string, cb payment.CallbackPayload) string {
	field := func(name, value string) string {
		return fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`, name, html.EscapeString(value))
	}
	return `<!DOCTYPE html><html><body><form id="threeds" method="post" action="` + html.EscapeString(callbackURL) + `">` +
		field("paymentId", cb.PaymentID) +
		field("conversationId", cb.ConversationID) +
		field("status", cb.Status) +
		field("conversationData", cb.ConversationData) +
		field("hash", cb.Hash) +
		`<p>Simulated 3-D Secure</p><button type="submit">Confirm</button></form></body></html>`
}
