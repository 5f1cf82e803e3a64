package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/readmodel"
)

// Mailer is the part of email.Service the handler uses.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, o email.OrderSummary) error
	SendPaymentReceipt(ctx context.Context, to string, r email.PaymentReceipt) error
	SendRefundNotice(ctx context.Context, to string, r email.RefundNotice) error
}

// Handler turns order events into customer emails
type Handler struct {
	mailer    Mailer
	readStore store.ReadStoreInterface
	currency  string
	log       *slog.Logger
}

func NewHandler(mailer Mailer, readStore store.ReadStoreInterface, currency string) *Handler {
	return &Handler{
		mailer:    mailer,
		readStore: readStore,
		currency:  currency,
		log:       logging.New("notifier"),
	}
}

// HandleEvent processes one message from the event bus. Events it does not
// care about are acknowledged without work.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(ctx, event)
	case order.EventOrderPaid:
		return h.handleOrderPaid(ctx, event)
	case order.EventOrderRefunded:
		return h.handleOrderRefunded(ctx, event)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}

	to := e.CustomerEmail
	if to == "" {
		to = h.customerEmail(ctx, e.CustomerID)
	}
	if to == "" {
		h.log.Warn("no email address for order", "order_id", e.OrderID, "customer_id", e.CustomerID)
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		items[i] = email.OrderItem{Name: name, Variant: item.Variant, Quantity: item.Quantity, Price: item.Price}
	}

	err := h.mailer.SendOrderConfirmation(ctx, to, email.OrderSummary{
		OrderNumber:   e.OrderNumber,
		CustomerName:  e.CustomerName,
		PaymentMethod: string(e.PaymentMethod),
		Items:         items,
		Subtotal:      e.Subtotal,
		Tax:           e.Tax,
		Shipping:      e.ShippingCost,
		Total:         e.Total,
		Currency:      h.currency,
	})
	if err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}
	h.log.Info("order confirmation sent", "order_id", e.OrderID, "to", to)
	return nil
}

func (h *Handler) handleOrderPaid(ctx context.Context, event store.Event) error {
	var e order.OrderPaid
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	to := h.orderEmail(ctx, e.OrderID, e.CustomerID)
	if to == "" {
		h.log.Warn("no email address for payment receipt", "order_id", e.OrderID)
		return nil
	}

	err := h.mailer.SendPaymentReceipt(ctx, to, email.PaymentReceipt{
		OrderNumber:    e.OrderNumber,
		Amount:         e.Amount,
		Currency:       h.currency,
		CardBrand:      e.Payment.CardBrand,
		LastFourDigits: e.Payment.LastFourDigits,
	})
	if err != nil {
		return fmt.Errorf("send payment receipt: %w", err)
	}
	h.log.Info("payment receipt sent", "order_id", e.OrderID, "to", to)
	return nil
}

func (h *Handler) handleOrderRefunded(ctx context.Context, event store.Event) error {
	var e order.OrderRefunded
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	to := h.orderEmail(ctx, e.OrderID, e.CustomerID)
	if to == "" {
		h.log.Warn("no email address for refund notice", "order_id", e.OrderID)
		return nil
	}

	err := h.mailer.SendRefundNotice(ctx, to, email.RefundNotice{
		OrderNumber: e.OrderNumber,
		Amount:      e.Refund.Amount,
		Currency:    h.currency,
		Reason:      e.Refund.Reason,
	})
	if err != nil {
		return fmt.Errorf("send refund notice: %w", err)
	}
	h.log.Info("refund notice sent", "order_id", e.OrderID, "to", to)
	return nil
}

// orderEmail prefers the address captured on the order over the current
// profile.
func (h *Handler) orderEmail(ctx context.Context, orderID, customerID string) string {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionOrders, orderID)
	if err != nil {
		h.log.Warn("order lookup failed", "order_id", orderID, "err", err)
	}
	if ok {
		if o, isOrder := data.(*readmodel.OrderReadModel); isOrder && o.CustomerEmail != "" {
			return o.CustomerEmail
		}
	}
	return h.customerEmail(ctx, customerID)
}

func (h *Handler) customerEmail(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionCustomers, customerID)
	if err != nil {
		h.log.Warn("customer lookup failed", "customer_id", customerID, "err", err)
		return ""
	}
	if !ok {
		return ""
	}
	if c, isCustomer := data.(*readmodel.CustomerReadModel); isCustomer {
		return c.Email
	}
	return ""
}
