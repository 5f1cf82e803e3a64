package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

const AggregateType = "Inventory"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StreamID is the event stream of a product's stock counter.
func StreamID(productID string) string {
	return "inventory-" + productID
}

type Inventory struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Version   int    `json:"version"`
}

func (i *Inventory) GetID() string   { return i.ID }
func (i *Inventory) GetVersion() int { return i.Version }

func (i *Inventory) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventStockAdded:
		var data StockAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		i.ProductID = data.ProductID
		i.Stock += data.Quantity
	case EventStockDecremented:
		var data StockDecremented
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		i.ProductID = data.ProductID
		i.Stock -= data.Quantity
		if i.Stock < 0 {
			i.Stock = 0
		}
	case EventStockRestored:
		var data StockRestored
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		i.ProductID = data.ProductID
		i.Stock += data.Quantity
	}
	i.ID = event.AggregateID
	i.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get returns the stock counter of a product; a product never stocked has zero.
func (s *Service) Get(ctx context.Context, productID string) (*Inventory, error) {
	id := StreamID(productID)
	inv, _, err := aggregate.Load(ctx, s.eventStore, id, func() *Inventory {
		return &Inventory{ID: id, ProductID: productID}
	})
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", productID, err)
	}
	return inv, nil
}

func (s *Service) AddStock(ctx context.Context, productID string, quantity int) (*Inventory, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	inv, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	event := StockAdded{
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now().UTC(),
	}
	stored, err := s.eventStore.Append(ctx, inv.ID, AggregateType, EventStockAdded, event)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, s.eventStore, inv, AggregateType, *stored); err != nil {
		return nil, err
	}
	return inv, nil
}

// PrepareDecrement builds the decrement event for an order without storing it.
// The event carries the observed version, so the batch it joins fails if
// another order moved this counter in the meantime.
func PrepareDecrement(inv *Inventory, orderID string, quantity int) (store.PendingEvent, error) {
	if quantity <= 0 {
		return store.PendingEvent{}, ErrInvalidQuantity
	}
	if inv.Stock < quantity {
		return store.PendingEvent{}, fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, inv.ProductID, inv.Stock, quantity)
	}
	return store.PendingEvent{
		AggregateID:   inv.ID,
		AggregateType: AggregateType,
		EventType:     EventStockDecremented,
		Data: StockDecremented{
			ProductID:     inv.ProductID,
			OrderID:       orderID,
			Quantity:      quantity,
			DecrementedAt: time.Now().UTC(),
		},
		ExpectedVersion: inv.Version,
	}, nil
}

// PrepareRestore builds a restock event; restocks never conflict.
func PrepareRestore(productID, orderID string, quantity int) store.PendingEvent {
	return store.PendingEvent{
		AggregateID:   StreamID(productID),
		AggregateType: AggregateType,
		EventType:     EventStockRestored,
		Data: StockRestored{
			ProductID:  productID,
			OrderID:    orderID,
			Quantity:   quantity,
			RestoredAt: time.Now().UTC(),
		},
		ExpectedVersion: store.AnyVersion,
	}
}
