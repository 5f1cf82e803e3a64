package order

import (
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderRefunded      = "OrderRefunded"
)

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Variant   string          `json:"variant,omitempty"`
	Image     string          `json:"image,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PaymentDetails is the redacted record of a captured payment. It never
// holds the card number or the CVC.
type PaymentDetails struct {
	PaymentID      string    `json:"payment_id"`
	Provider       string    `json:"provider"`
	ConversationID string    `json:"conversation_id,omitempty"`
	LastFourDigits string    `json:"last_four_digits,omitempty"`
	CardBrand      string    `json:"card_brand,omitempty"`
	PaidAt         time.Time `json:"paid_at"`
}

type RefundDetails struct {
	RefundID   string          `json:"refund_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	RefundedAt time.Time       `json:"refunded_at"`
}

type OrderPlaced struct {
	OrderID         string           `json:"order_id"`
	OrderNumber     string           `json:"order_number"`
	CustomerID      string           `json:"customer_id"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerName    string           `json:"customer_name"`
	Items           []OrderItem      `json:"items"`
	ShippingAddress address.Address  `json:"shipping_address"`
	BillingAddress  *address.Address `json:"billing_address,omitempty"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Tax             decimal.Decimal  `json:"tax"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	Discount        decimal.Decimal  `json:"discount"`
	Total           decimal.Decimal  `json:"total"`
	Notes           string           `json:"notes,omitempty"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
	PlacedAt        time.Time        `json:"placed_at"`
}

type OrderPaid struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Payment     PaymentDetails  `json:"payment"`
}

type OrderStatusChanged struct {
	OrderID        string    `json:"order_id"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
}

type OrderRefunded struct {
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	CustomerID  string        `json:"customer_id"`
	Refund      RefundDetails `json:"refund"`
}
