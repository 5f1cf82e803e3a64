package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

// Product Commands
type CreateProduct struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Stock       int             `json:"stock"`
}

type UpdateProduct struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
}

type DeleteProduct struct {
	ProductID string `json:"product_id"`
}

type RestockProduct struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart Commands

// AddToCart fills Name, Image and a nil Price from the catalog. A price the
// client sent is kept as given, even when it coerced to zero.
type AddToCart struct {
	CustomerID string            `json:"customer_id"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	Price      *decimal.Decimal  `json:"price"`
	Quantity   int               `json:"quantity"`
	Image      string            `json:"image"`
	Variants   map[string]string `json:"variants"`
}

type UpdateCartItem struct {
	CustomerID string `json:"customer_id"`
	LineKey    string `json:"line_key"`
	Quantity   int    `json:"quantity"`
}

type RemoveFromCart struct {
	CustomerID string `json:"customer_id"`
	LineKey    string `json:"line_key"`
}

type ClearCart struct {
	CustomerID string `json:"customer_id"`
}

// Order Commands

// OrderLine is a requested product and quantity. Client prices are not
// carried; the order is priced from live product data.
type OrderLine struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
}

type CreateOrder struct {
	CustomerID      string              `json:"customer"`
	Items           []OrderLine         `json:"items"`
	ShippingAddress address.Address     `json:"shippingAddress"`
	BillingAddress  *address.Address    `json:"billingAddress,omitempty"`
	PaymentMethod   order.PaymentMethod `json:"paymentMethod"`
	Notes           string              `json:"notes,omitempty"`
	IdempotencyKey  string              `json:"-"`
}

type UpdateOrderStatus struct {
	OrderID        string       `json:"order_id"`
	Status         order.Status `json:"status"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// Fingerprint identifies what the order buys and where it goes: the lines,
// both addresses and the payment method. Line order, notes and the
// address book's default flag do not change it.
func (c CreateOrder) Fingerprint() string {
	lines := append([]OrderLine(nil), c.Items...)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].Variant < lines[j].Variant
	})
	shipping := c.ShippingAddress
	shipping.IsDefault = false
	var billing *address.Address
	if c.BillingAddress != nil {
		b := *c.BillingAddress
		b.IsDefault = false
		billing = &b
	}

	doc, _ := json.Marshal(struct {
		Items    []OrderLine         `json:"items"`
		Shipping address.Address     `json:"shipping"`
		Billing  *address.Address    `json:"billing,omitempty"`
		Method   order.PaymentMethod `json:"method"`
	}{lines, shipping, billing, c.PaymentMethod})
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
