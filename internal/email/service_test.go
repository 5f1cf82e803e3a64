package email

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []Message
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

// ============================================
// Formatting Tests
// ============================================

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00 TRY"},
		{"25", "25.00 TRY"},
		{"999.5", "999.50 TRY"},
		{"1234.5", "1,234.50 TRY"},
		{"1234567.891", "1,234,567.89 TRY"},
		{"-1500", "-1,500.00 TRY"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in), "TRY"))
		})
	}
	assert.Equal(t, "10.00", FormatMoney(decimal.NewFromInt(10), ""))
}

// ============================================
// Template Tests
// ============================================

func TestBuildOrderConfirmationBody(t *testing.T) {
	body := BuildOrderConfirmationBody("Shop", OrderSummary{
		OrderNumber:   "ORD-20250615-ABCDEF12",
		CustomerName:  "Ayşe <script>",
		PaymentMethod: "cash_on_delivery",
		Items: []OrderItem{
			{Name: "Shirt", Variant: "size=M", Quantity: 2, Price: decimal.NewFromInt(100)},
		},
		Subtotal: decimal.NewFromInt(200),
		Tax:      decimal.NewFromInt(36),
		Shipping: decimal.NewFromInt(25),
		Total:    decimal.NewFromInt(261),
		Currency: "TRY",
	})

	assert.Contains(t, body, "ORD-20250615-ABCDEF12")
	assert.Contains(t, body, "Cash on delivery")
	assert.Contains(t, body, "size=M")
	assert.Contains(t, body, "200.00 TRY")
	assert.Contains(t, body, "261.00 TRY")
	assert.Contains(t, body, "Ayşe &lt;script&gt;")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "100%")
	assert.NotContains(t, body, "%!")
}

func TestBuildPaymentReceiptBody(t *testing.T) {
	body := BuildPaymentReceiptBody("Shop", PaymentReceipt{
		OrderNumber: "ORD-1", Amount: decimal.NewFromInt(320), Currency: "TRY", CardBrand: "VISA", LastFourDigits: "0366",
	})

	assert.Contains(t, body, "320.00 TRY")
	assert.Contains(t, body, "VISA ending in <strong>0366</strong>")
}

func TestBuildRefundBody(t *testing.T) {
	body := BuildRefundBody("Shop", RefundNotice{OrderNumber: "ORD-1", Amount: decimal.NewFromInt(50), Currency: "TRY", Reason: "damaged"})

	assert.Contains(t, body, "50.00 TRY")
	assert.Contains(t, body, "Reason: damaged")
}

// ============================================
// Service Tests
// ============================================

func TestService_SendOrderConfirmation(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, "Storefront")

	err := svc.SendOrderConfirmation(context.Background(), "ayse@example.com", OrderSummary{OrderNumber: "ORD-1"})

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ayse@example.com", sender.sent[0].To)
	assert.Equal(t, "Storefront: order ORD-1 received", sender.sent[0].Subject)
}

func TestService_DefaultShopName(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, "")

	require.NoError(t, svc.SendRefundNotice(context.Background(), "a@b.c", RefundNotice{OrderNumber: "ORD-2"}))

	assert.Equal(t, "Storefront: refund issued for order ORD-2", sender.sent[0].Subject)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@b.c"}))
}
