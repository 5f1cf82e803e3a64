package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrMissingCustomer      = errors.New("order customer is required")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidStatus        = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid     = errors.New("order is already paid")
	ErrOrderNotPaid         = errors.New("order is not paid")
	ErrMissingPaymentID     = errors.New("order has no payment reference")
	ErrOrderCancelled       = errors.New("order is cancelled")
	ErrInvalidRefundAmount  = errors.New("refund amount must be positive and not exceed the order total")
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodBankTransfer, MethodCashOnDelivery:
		return true
	}
	return false
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.TrimSpace(s))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
	return m, nil
}

// validTransitions lists the admin status changes. Payment and refund move
// the status on their own events.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, s)
	}
	return st, nil
}

type Order struct {
	ID              string           `json:"id"`
	OrderNumber     string           `json:"order_number"`
	CustomerID      string           `json:"customer_id"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerName    string           `json:"customer_name"`
	Items           []OrderItem      `json:"items"`
	ShippingAddress address.Address  `json:"shipping_address"`
	BillingAddress  *address.Address `json:"billing_address,omitempty"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	Status          Status           `json:"order_status"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Tax             decimal.Decimal  `json:"tax"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	Discount        decimal.Decimal  `json:"discount"`
	Total           decimal.Decimal  `json:"total"`
	Notes           string           `json:"notes,omitempty"`
	PaymentDetails  *PaymentDetails  `json:"payment_details,omitempty"`
	RefundDetails   *RefundDetails   `json:"refund_details,omitempty"`
	TrackingNumber  string           `json:"tracking_number,omitempty"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int              `json:"version"`
}

func (o *Order) GetID() string   { return o.ID }
func (o *Order) GetVersion() int { return o.Version }

// Billing returns the billing address, falling back to the shipping one.
func (o *Order) Billing() address.Address {
	if o.BillingAddress != nil {
		return *o.BillingAddress
	}
	return o.ShippingAddress
}

func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) transitionError(target Status) error {
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
}

func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.OrderNumber = data.OrderNumber
		o.CustomerID = data.CustomerID
		o.CustomerEmail = data.CustomerEmail
		o.CustomerName = data.CustomerName
		o.Items = data.Items
		o.ShippingAddress = data.ShippingAddress
		o.BillingAddress = data.BillingAddress
		o.PaymentMethod = data.PaymentMethod
		o.PaymentStatus = PaymentPending
		o.Status = StatusPending
		o.Subtotal = data.Subtotal
		o.Tax = data.Tax
		o.ShippingCost = data.ShippingCost
		o.Discount = data.Discount
		o.Total = data.Total
		o.Notes = data.Notes
		o.IdempotencyKey = data.IdempotencyKey
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderPaid:
		var data OrderPaid
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		payment := data.Payment
		o.PaymentDetails = &payment
		o.PaymentStatus = PaymentPaid
		o.Status = StatusProcessing
		o.UpdatedAt = payment.PaidAt
	case EventOrderStatusChanged:
		var data OrderStatusChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = data.To
		if data.TrackingNumber != "" {
			o.TrackingNumber = data.TrackingNumber
		}
		o.UpdatedAt = data.ChangedAt
	case EventOrderRefunded:
		var data OrderRefunded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		refund := data.Refund
		o.RefundDetails = &refund
		o.PaymentStatus = PaymentRefunded
		o.Status = StatusCancelled
		o.UpdatedAt = refund.RefundedAt
	}
	o.Version = event.Version
	return nil
}

// GenerateOrderNumber returns ORD-YYYYMMDD-XXXXXXXX with a random
// upper-case suffix.
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

// PlaceInput carries the authoritative order contents; prices and totals
// are computed by the caller from live product data.
type PlaceInput struct {
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	Items           []OrderItem
	ShippingAddress address.Address
	BillingAddress  *address.Address
	PaymentMethod   PaymentMethod
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	ShippingCost    decimal.Decimal
	Discount        decimal.Decimal
	Notes           string
	IdempotencyKey  string
}

// Prepare builds the OrderPlaced event of a new order without storing it.
// Total is fixed here as subtotal + tax + shipping - discount.
func Prepare(in PlaceInput, now time.Time) (store.PendingEvent, OrderPlaced, error) {
	if in.CustomerID == "" {
		return store.PendingEvent{}, OrderPlaced{}, ErrMissingCustomer
	}
	if len(in.Items) == 0 {
		return store.PendingEvent{}, OrderPlaced{}, ErrEmptyOrder
	}
	if !in.PaymentMethod.Valid() {
		return store.PendingEvent{}, OrderPlaced{}, ErrInvalidPaymentMethod
	}

	placed := OrderPlaced{
		OrderID:         uuid.New().String(),
		OrderNumber:     GenerateOrderNumber(now),
		CustomerID:      in.CustomerID,
		CustomerEmail:   in.CustomerEmail,
		CustomerName:    in.CustomerName,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		PaymentMethod:   in.PaymentMethod,
		Subtotal:        in.Subtotal,
		Tax:             in.Tax,
		ShippingCost:    in.ShippingCost,
		Discount:        in.Discount,
		Total:           in.Subtotal.Add(in.Tax).Add(in.ShippingCost).Sub(in.Discount),
		Notes:           in.Notes,
		IdempotencyKey:  in.IdempotencyKey,
		PlacedAt:        now,
	}
	return store.PendingEvent{
		AggregateID:     placed.OrderID,
		AggregateType:   AggregateType,
		EventType:       EventOrderPlaced,
		Data:            placed,
		ExpectedVersion: 0,
	}, placed, nil
}

// PrepareStatusChange builds an admin status change. Shipping may carry a
// tracking number.
func PrepareStatusChange(o *Order, target Status, trackingNumber, reason string) (store.PendingEvent, error) {
	if !o.CanTransitionTo(target) {
		return store.PendingEvent{}, o.transitionError(target)
	}
	if target != StatusShipped {
		trackingNumber = ""
	}
	return store.PendingEvent{
		AggregateID:   o.ID,
		AggregateType: AggregateType,
		EventType:     EventOrderStatusChanged,
		Data: OrderStatusChanged{
			OrderID:        o.ID,
			From:           o.Status,
			To:             target,
			TrackingNumber: strings.TrimSpace(trackingNumber),
			Reason:         reason,
			ChangedAt:      time.Now().UTC(),
		},
		ExpectedVersion: o.Version,
	}, nil
}

// CheckPayable reports why an order cannot be paid, if it cannot.
func CheckPayable(o *Order) error {
	switch {
	case o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded:
		return ErrOrderAlreadyPaid
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	}
	return nil
}

// RefundAmount resolves the requested refund amount against the order:
// zero means the full total.
func RefundAmount(o *Order, requested decimal.Decimal) (decimal.Decimal, error) {
	if o.PaymentStatus != PaymentPaid {
		return decimal.Zero, ErrOrderNotPaid
	}
	if o.PaymentDetails == nil || o.PaymentDetails.PaymentID == "" {
		return decimal.Zero, ErrMissingPaymentID
	}
	if requested.IsZero() {
		return o.Total, nil
	}
	if requested.IsNegative() || requested.GreaterThan(o.Total) {
		return decimal.Zero, ErrInvalidRefundAmount
	}
	return requested, nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := aggregate.Load(ctx, s.eventStore, orderID, func() *Order { return &Order{} })
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// MarkPaid records a captured payment: payment status paid, order status
// processing. A concurrent payment of the same order fails with a version
// conflict.
func (s *Service) MarkPaid(ctx context.Context, o *Order, payment PaymentDetails) error {
	if err := CheckPayable(o); err != nil {
		return err
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}

	event := OrderPaid{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Amount:      o.Total,
		Payment:     payment,
	}
	return s.appendExpected(ctx, o, EventOrderPaid, event)
}

// MarkRefunded records a refund: payment status refunded, order status
// cancelled.
func (s *Service) MarkRefunded(ctx context.Context, o *Order, refund RefundDetails) error {
	if o.PaymentStatus != PaymentPaid {
		return ErrOrderNotPaid
	}
	if refund.RefundedAt.IsZero() {
		refund.RefundedAt = time.Now().UTC()
	}

	event := OrderRefunded{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Refund:      refund,
	}
	return s.appendExpected(ctx, o, EventOrderRefunded, event)
}

func (s *Service) appendExpected(ctx context.Context, o *Order, eventType string, data any) error {
	stored, err := s.eventStore.AppendBatch(ctx, []store.PendingEvent{{
		AggregateID:     o.ID,
		AggregateType:   AggregateType,
		EventType:       eventType,
		Data:            data,
		ExpectedVersion: o.Version,
	}})
	if err != nil {
		return err
	}
	return aggregate.Commit(ctx, s.eventStore, o, AggregateType, stored...)
}
