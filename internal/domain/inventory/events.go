package inventory

import "time"

const (
	EventStockAdded       = "StockAdded"
	EventStockDecremented = "StockDecremented"
	EventStockRestored    = "StockRestored"
)

type StockAdded struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// StockDecremented is committed together with the OrderPlaced event it belongs to.
type StockDecremented struct {
	ProductID     string    `json:"product_id"`
	OrderID       string    `json:"order_id"`
	Quantity      int       `json:"quantity"`
	DecrementedAt time.Time `json:"decremented_at"`
}

// StockRestored returns units of a cancelled order.
type StockRestored struct {
	ProductID  string    `json:"product_id"`
	OrderID    string    `json:"order_id"`
	Quantity   int       `json:"quantity"`
	RestoredAt time.Time `json:"restored_at"`
}
