package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventItemAdded           = "ItemAddedToCart"
	EventItemQuantityChanged = "CartItemQuantityChanged"
	EventItemRemoved         = "ItemRemovedFromCart"
	EventCartCleared         = "CartCleared"
	EventItemsCheckedOut     = "ItemsCheckedOut"
)

// ItemAddedToCart adds Quantity to the line identified by LineKey, creating
// the line when it does not exist yet.
type ItemAddedToCart struct {
	CartID     string            `json:"cart_id"`
	CustomerID string            `json:"customer_id"`
	LineKey    string            `json:"line_key"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	Price      decimal.Decimal   `json:"price"`
	Quantity   int               `json:"quantity"`
	Image      string            `json:"image,omitempty"`
	Variants   map[string]string `json:"variants,omitempty"`
	AddedAt    time.Time         `json:"added_at"`
}

type CartItemQuantityChanged struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	LineKey    string    `json:"line_key"`
	Quantity   int       `json:"quantity"`
	ChangedAt  time.Time `json:"changed_at"`
}

type ItemRemovedFromCart struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	LineKey    string    `json:"line_key"`
	RemovedAt  time.Time `json:"removed_at"`
}

type CartCleared struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id,omitempty"`
	ClearedAt  time.Time `json:"cleared_at"`
}

// ItemsCheckedOut takes the quantities an order was paid for out of the
// cart. A line whose quantity reaches zero is removed.
type ItemsCheckedOut struct {
	CartID       string         `json:"cart_id"`
	CustomerID   string         `json:"customer_id"`
	OrderID      string         `json:"order_id"`
	Lines        map[string]int `json:"lines"`
	CheckedOutAt time.Time      `json:"checked_out_at"`
}
