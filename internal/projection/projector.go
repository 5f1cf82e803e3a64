package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/readmodel"
)

// Projector folds committed events into the read models. It runs inline as
// the event store's publisher or behind a Kafka/RabbitMQ consumer.
type Projector struct {
	readStore store.ReadStoreInterface
	log       *slog.Logger
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore, log: logging.New("projector")}
}

// HandleEvent decodes a message from the event bus and applies it.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Apply(ctx, event)
}

// Publish lets the projector stand in for the bus when events are projected
// in the writing process.
func (p *Projector) Publish(ctx context.Context, key string, event any) error {
	e, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return p.Apply(ctx, e)
}

// Replay rebuilds the read models from the whole event stream.
func (p *Projector) Replay(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		if err := p.Apply(ctx, e); err != nil {
			return 0, fmt.Errorf("replay %s %s: %w", e.EventType, e.ID, err)
		}
	}
	p.log.Info("read models rebuilt", "events", len(events))
	return len(events), nil
}

func (p *Projector) Apply(ctx context.Context, event store.Event) error {
	p.log.Debug("projecting event", "event_type", event.EventType, "aggregate_id", event.AggregateID)

	var err error
	switch event.AggregateType {
	case product.AggregateType:
		err = p.handleProductEvent(ctx, event)
	case inventory.AggregateType:
		err = p.handleInventoryEvent(ctx, event)
	case order.AggregateType:
		err = p.handleOrderEvent(ctx, event)
	case customer.AggregateType:
		err = p.handleCustomerEvent(ctx, event)
	default:
		// Carts and address books are read from their aggregates.
		return nil
	}
	if err != nil {
		return err
	}
	metrics.ProjectedEvents.WithLabelValues(event.EventType).Inc()
	return nil
}

func (p *Projector) handleProductEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case product.EventProductCreated:
		var e product.ProductCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Set(ctx, readmodel.CollectionProducts, e.ProductID, &readmodel.ProductReadModel{
			ID:          e.ProductID,
			Name:        e.Name,
			Description: e.Description,
			Price:       e.Price,
			Images:      images(e.Images),
			Image:       first(e.Images),
			CreatedAt:   e.CreatedAt,
			UpdatedAt:   e.CreatedAt,
		})

	case product.EventProductUpdated:
		var e product.ProductUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionProducts, e.ProductID, func(current any) any {
			prod := current.(*readmodel.ProductReadModel)
			prod.Name = e.Name
			prod.Description = e.Description
			prod.Price = e.Price
			prod.Images = images(e.Images)
			prod.Image = first(e.Images)
			prod.UpdatedAt = e.UpdatedAt
			return prod
		})
		return err

	case product.EventProductDeleted:
		var e product.ProductDeleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Delete(ctx, readmodel.CollectionProducts, e.ProductID)
	}
	return nil
}

func (p *Projector) handleInventoryEvent(ctx context.Context, event store.Event) error {
	var (
		productID string
		delta     int
	)
	switch event.EventType {
	case inventory.EventStockAdded:
		var e inventory.StockAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		productID, delta = e.ProductID, e.Quantity

	case inventory.EventStockDecremented:
		var e inventory.StockDecremented
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		productID, delta = e.ProductID, -e.Quantity

	case inventory.EventStockRestored:
		var e inventory.StockRestored
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		productID, delta = e.ProductID, e.Quantity

	default:
		return nil
	}

	_, err := p.readStore.Update(ctx, readmodel.CollectionProducts, productID, func(current any) any {
		prod := current.(*readmodel.ProductReadModel)
		prod.Stock += delta
		prod.UpdatedAt = event.Timestamp
		return prod
	})
	return err
}

func (p *Projector) handleOrderEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		items := make([]readmodel.OrderItemReadModel, len(e.Items))
		for i, item := range e.Items {
			items[i] = readmodel.OrderItemReadModel{
				ProductID: item.ProductID,
				Name:      item.Name,
				Price:     item.Price,
				Quantity:  item.Quantity,
				Variant:   item.Variant,
				Image:     item.Image,
			}
		}
		return p.readStore.Set(ctx, readmodel.CollectionOrders, e.OrderID, &readmodel.OrderReadModel{
			ID:              e.OrderID,
			OrderNumber:     e.OrderNumber,
			CustomerID:      e.CustomerID,
			CustomerEmail:   e.CustomerEmail,
			CustomerName:    e.CustomerName,
			Items:           items,
			ShippingAddress: e.ShippingAddress,
			BillingAddress:  e.BillingAddress,
			PaymentMethod:   string(e.PaymentMethod),
			PaymentStatus:   string(order.PaymentPending),
			OrderStatus:     string(order.StatusPending),
			Subtotal:        e.Subtotal,
			Tax:             e.Tax,
			ShippingCost:    e.ShippingCost,
			Discount:        e.Discount,
			Total:           e.Total,
			Notes:           e.Notes,
			CreatedAt:       e.PlacedAt,
			UpdatedAt:       e.PlacedAt,
		})

	case order.EventOrderPaid:
		var e order.OrderPaid
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.PaymentStatus = string(order.PaymentPaid)
			o.OrderStatus = string(order.StatusProcessing)
			o.Payment = &readmodel.PaymentReadModel{
				PaymentID:      e.Payment.PaymentID,
				Provider:       e.Payment.Provider,
				LastFourDigits: e.Payment.LastFourDigits,
				CardBrand:      e.Payment.CardBrand,
				PaidAt:         e.Payment.PaidAt,
			}
			o.UpdatedAt = e.Payment.PaidAt
			return o
		})
		return err

	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.OrderStatus = string(e.To)
			if e.TrackingNumber != "" {
				o.TrackingNumber = e.TrackingNumber
			}
			o.UpdatedAt = e.ChangedAt
			return o
		})
		return err

	case order.EventOrderRefunded:
		var e order.OrderRefunded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionOrders, e.OrderID, func(current any) any {
			o := current.(*readmodel.OrderReadModel)
			o.PaymentStatus = string(order.PaymentRefunded)
			o.OrderStatus = string(order.StatusCancelled)
			o.Refund = &readmodel.RefundReadModel{
				RefundID:   e.Refund.RefundID,
				Amount:     e.Refund.Amount,
				Reason:     e.Refund.Reason,
				RefundedAt: e.Refund.RefundedAt,
			}
			o.UpdatedAt = e.Refund.RefundedAt
			return o
		})
		return err
	}
	return nil
}

func (p *Projector) handleCustomerEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case customer.EventCustomerRegistered:
		var e customer.CustomerRegistered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		email := customer.NormalizeEmail(e.Email)
		if err := p.readStore.Set(ctx, readmodel.CollectionCustomers, e.CustomerID, &readmodel.CustomerReadModel{
			ID:        e.CustomerID,
			Email:     email,
			Name:      e.Name,
			Phone:     e.Phone,
			Role:      e.Role,
			CreatedAt: e.RegisteredAt,
			UpdatedAt: e.RegisteredAt,
		}); err != nil {
			return err
		}
		return p.readStore.Set(ctx, readmodel.CollectionCustomerEmails, email, &readmodel.CustomerEmailReadModel{
			Email:      email,
			CustomerID: e.CustomerID,
		})

	case customer.EventCustomerProfileUpdated:
		var e customer.CustomerProfileUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionCustomers, e.CustomerID, func(current any) any {
			c := current.(*readmodel.CustomerReadModel)
			c.Name = e.Name
			c.Phone = e.Phone
			c.UpdatedAt = e.UpdatedAt
			return c
		})
		return err

	case customer.EventCustomerLoggedIn:
		var e customer.CustomerLoggedIn
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionCustomers, e.CustomerID, func(current any) any {
			c := current.(*readmodel.CustomerReadModel)
			c.LastLogin = e.LoggedAt
			return c
		})
		return err

	case customer.EventOrderAppended:
		var e customer.CustomerOrderAppended
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionCustomers, e.CustomerID, func(current any) any {
			c := current.(*readmodel.CustomerReadModel)
			c.OrderCount++
			c.UpdatedAt = e.AppendedAt
			return c
		})
		return err
	}
	return nil
}

func images(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func first(in []string) string {
	if len(in) == 0 {
		return ""
	}
	return in[0]
}
