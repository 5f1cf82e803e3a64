package readmodel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/shopspring/decimal"
)

const (
	CollectionProducts       = "products"
	CollectionOrders         = "orders"
	CollectionCustomers      = "customers"
	CollectionCustomerEmails = "customer_emails"
	CollectionAuthSessions   = "auth_sessions"
)

// ProductReadModel is the catalog entry with its current stock.
type ProductReadModel struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Image       string          `json:"image,omitempty"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (p *ProductReadModel) InStock() bool { return p.Stock > 0 }

type OrderItemReadModel struct {
	ProductID string          `json:"product"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Variant   string          `json:"variant,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// PaymentReadModel never carries card data beyond the last four digits.
type PaymentReadModel struct {
	PaymentID      string    `json:"paymentId"`
	Provider       string    `json:"provider"`
	LastFourDigits string    `json:"lastFourDigits,omitempty"`
	CardBrand      string    `json:"cardBrand,omitempty"`
	PaidAt         time.Time `json:"paidAt"`
}

type RefundReadModel struct {
	RefundID   string          `json:"refundId"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	RefundedAt time.Time       `json:"refundedAt"`
}

// OrderReadModel is the order as shown to customers and admins.
type OrderReadModel struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	CustomerID      string               `json:"customer"`
	CustomerEmail   string               `json:"customerEmail"`
	CustomerName    string               `json:"customerName"`
	Items           []OrderItemReadModel `json:"items"`
	ShippingAddress address.Address      `json:"shippingAddress"`
	BillingAddress  *address.Address     `json:"billingAddress,omitempty"`
	PaymentMethod   string               `json:"paymentMethod"`
	PaymentStatus   string               `json:"paymentStatus"`
	OrderStatus     string               `json:"orderStatus"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	Tax             decimal.Decimal      `json:"tax"`
	ShippingCost    decimal.Decimal      `json:"shippingCost"`
	Discount        decimal.Decimal      `json:"discount"`
	Total           decimal.Decimal      `json:"total"`
	Notes           string               `json:"notes,omitempty"`
	TrackingNumber  string               `json:"trackingNumber,omitempty"`
	Payment         *PaymentReadModel    `json:"paymentDetails,omitempty"`
	Refund          *RefundReadModel     `json:"refundDetails,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// OrderStatusReadModel is the small polling view of an order.
type OrderStatusReadModel struct {
	OrderNumber   string `json:"orderNumber"`
	PaymentStatus string `json:"paymentStatus"`
	OrderStatus   string `json:"orderStatus"`
}

func (o *OrderReadModel) StatusView() *OrderStatusReadModel {
	return &OrderStatusReadModel{
		OrderNumber:   o.OrderNumber,
		PaymentStatus: o.PaymentStatus,
		OrderStatus:   o.OrderStatus,
	}
}

// CustomerReadModel is the public profile. The password hash stays in the
// event stream.
type CustomerReadModel struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Role       string    `json:"role"`
	OrderCount int       `json:"orderCount"`
	LastLogin  time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CustomerEmailReadModel indexes customers by normalized email.
type CustomerEmailReadModel struct {
	Email      string `json:"email"`
	CustomerID string `json:"customerId"`
}

// AuthSessionReadModel is a refresh-token session. Only the token hash is kept.
type AuthSessionReadModel struct {
	ID               string    `json:"id"`
	CustomerID       string    `json:"customerId"`
	RefreshTokenHash string    `json:"refreshTokenHash"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	IPAddress        string    `json:"ipAddress"`
	UserAgent        string    `json:"userAgent"`
}

// Decode turns a stored document into the read model of its collection. It
// is the store.Decoder used by every read store.
func Decode(collection string, data []byte) (any, error) {
	var v any
	switch collection {
	case CollectionProducts:
		v = &ProductReadModel{}
	case CollectionOrders:
		v = &OrderReadModel{}
	case CollectionCustomers:
		v = &CustomerReadModel{}
	case CollectionCustomerEmails:
		v = &CustomerEmailReadModel{}
	case CollectionAuthSessions:
		v = &AuthSessionReadModel{}
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return v, nil
}
