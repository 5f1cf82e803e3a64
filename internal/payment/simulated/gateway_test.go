package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func request(card string) payment.AuthorizeRequest {
	return payment.AuthorizeRequest{
		ConversationID: "order-1",
		Price:          decimal.NewFromInt(100),
		PaidPrice:      decimal.NewFromInt(100),
		Card:           payment.Card{HolderName: "Ali Veli", Number: card, ExpireMonth: "12", ExpireYear: "30", CVC: "123"},
	}
}

// ============================================
// Authorize Tests
// ============================================

func TestGateway_Authorize(t *testing.T) {
	g := New(secret, 0)

	res, err := g.Authorize(context.Background(), request("4532 0151 1283 0366"))

	require.NoError(t, err)
	assert.NotEmpty(t, res.PaymentID)
	assert.Equal(t, "0366", res.LastFourDigits)
	assert.Equal(t, "VISA", res.CardBrand)
	assert.Equal(t, "order-1", res.ConversationID)
}

func TestGateway_Authorize_DeclinedCard(t *testing.T) {
	g := New(secret, 0)

	_, err := g.Authorize(context.Background(), request("4000000000000002"))

	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "card declined", gwErr.Message)
}

func TestGateway_Authorize_ContextCancelled(t *testing.T) {
	g := New(secret, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Authorize(ctx, request("4532015112830366"))

	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================
// 3-D Secure Tests
// ============================================

func TestGateway_ThreeDS(t *testing.T) {
	g := New(secret, 0)
	ctx := context.Background()

	started, err := g.Initialize3DS(ctx, request("4532015112830366"), "https://shop.test/api/payments/3d-callback")
	require.NoError(t, err)
	assert.Contains(t, started.HTMLContent, "https://shop.test/api/payments/3d-callback")
	assert.Contains(t, started.HTMLContent, started.PaymentID)

	_, err = g.Complete3DS(ctx, started.PaymentID, "12345")
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "invalid_3ds_code", gwErr.Code)

	res, err := g.Complete3DS(ctx, started.PaymentID, "654321")
	require.NoError(t, err)
	assert.Equal(t, started.PaymentID, res.PaymentID)
	assert.Equal(t, "order-1", res.ConversationID)
	assert.True(t, res.PaidPrice.Equal(request("4532015112830366").PaidPrice))
}

func TestGateway_Complete3DS_UnknownPayment(t *testing.T) {
	g := New(secret, 0)

	_, err := g.Complete3DS(context.Background(), "missing", "123456")

	var gwErr *payment.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

// ============================================
// Refund / Callback Tests
// ============================================

func TestGateway_Refund(t *testing.T) {
	g := New(secret, 0)
	ctx := context.Background()
	res, _ := g.Authorize(ctx, request("4532015112830366"))

	_, err := g.Refund(ctx, payment.RefundRequest{PaymentID: res.PaymentID, Amount: decimal.NewFromInt(150)})
	assert.Error(t, err)

	refund, err := g.Refund(ctx, payment.RefundRequest{PaymentID: res.PaymentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.NotEmpty(t, refund.RefundID)

	_, err = g.Refund(ctx, payment.RefundRequest{PaymentID: "missing", Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
}

func TestGateway_VerifyCallback(t *testing.T) {
	g := New(secret, 0)
	p := payment.CallbackPayload{PaymentID: "p1", ConversationID: "o1", Status: "success", ConversationData: "x"}
	p.Hash = payment.CallbackHash(secret, p)

	assert.True(t, g.VerifyCallback(p))

	p.Status = "failure"
	assert.False(t, g.VerifyCallback(p))
}
