// Package checkout turns a customer's cart, selected address and payment
// choice into an order, running the card payment when one is needed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/example/ec-checkout/internal/session"
)

const (
	defaultConfirmationURL = "/order-confirmation"
	defaultRedirectAfter   = 3 * time.Second
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// OrderCreator creates orders from a checkout command.
type OrderCreator interface {
	CreateOrder(ctx context.Context, cmd command.CreateOrder) (*order.Order, error)
}

// Payments runs the card sub-flow against the payment gateway.
type Payments interface {
	Initialize(ctx context.Context, req payment.Requester, orderID string, card payment.Card) (*payment.Initialized, error)
	Initialize3D(ctx context.Context, req payment.Requester, orderID string, card payment.Card) (*payment.ThreeDSInitialized, error)
	CompleteThreeDS(ctx context.Context, req payment.Requester, orderID, paymentID, code string) (*payment.Initialized, error)
	AcceptsChallengeCode() bool
}

type Config struct {
	// ConfirmationURL is where the browser goes after a completed checkout.
	ConfirmationURL string
	RedirectAfter   time.Duration
	// Estimator computes the totals shown to the customer. The server
	// prices the order again on its own.
	Estimator *pricing.Calculator
	Now       func() time.Time
}

type Workflow struct {
	carts     *cart.Service
	addresses *address.Service
	sessions  session.Store
	orders    OrderCreator
	payments  Payments
	cfg       Config
}

func NewWorkflow(carts *cart.Service, addresses *address.Service, sessions session.Store, orders OrderCreator, payments Payments, cfg Config) *Workflow {
	if cfg.ConfirmationURL == "" {
		cfg.ConfirmationURL = defaultConfirmationURL
	}
	if cfg.RedirectAfter <= 0 {
		cfg.RedirectAfter = defaultRedirectAfter
	}
	if cfg.Estimator == nil {
		cfg.Estimator = pricing.NewCalculator(pricing.DefaultTaxRate, pricing.DefaultThresholdShipping())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Workflow{
		carts:     carts,
		addresses: addresses,
		sessions:  sessions,
		orders:    orders,
		payments:  payments,
		cfg:       cfg,
	}
}

type SubmitInput struct {
	CustomerID string
	IP         string
	// IdempotencyKey falls back to the session's checkout token.
	IdempotencyKey string
	Notes          string
	Card           *payment.Card
	Use3DS         bool
}

// Result is what the storefront needs to finish the checkout page. With
// 3-D Secure the order is not paid yet and ThreeDSHTMLContent must be
// shown to the customer.
type Result struct {
	OrderID            string              `json:"orderId"`
	OrderNumber        string              `json:"orderNumber"`
	PaymentMethod      order.PaymentMethod `json:"paymentMethod"`
	PaymentStatus      order.PaymentStatus `json:"paymentStatus"`
	RedirectURL        string              `json:"redirectUrl,omitempty"`
	RedirectAfter      int                 `json:"redirectAfter,omitempty"`
	PaymentID          string              `json:"paymentId,omitempty"`
	ThreeDSHTMLContent string              `json:"threeDSHtmlContent,omitempty"`
	Estimate           pricing.Totals      `json:"estimate"`
}

// Estimate computes the display totals for a cart.
func (w *Workflow) Estimate(c *cart.Cart) pricing.Totals {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{Price: it.Price, Quantity: it.Quantity})
	}
	return w.cfg.Estimator.Calculate(lines)
}

// Submit checks the checkout preconditions in order, creates the order and
// runs the card payment. The cart and session change only once everything
// succeeded, so a failed attempt can be retried with the same key. A
// pending 3-D Secure order only records its cart lines in the session.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (res *Result, err error) {
	defer func() { metrics.CheckoutOutcomes.WithLabelValues(outcome(err)).Inc() }()

	c, err := w.carts.Get(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, invalid(FieldCart, "empty_cart", "cart is empty")
	}

	state, err := w.sessions.Get(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	if state.SelectedAddressID == "" {
		// Nothing selected yet: ship to the default address, as the
		// session view preselects it.
		book, err := w.addresses.Get(ctx, in.CustomerID)
		if err != nil {
			return nil, err
		}
		def, ok := book.Default()
		if !ok {
			return nil, invalid(FieldAddress, "address_required", "select a shipping address")
		}
		state.SelectedAddressID = def.ID
	}

	method, err := SelectPaymentMethod(state.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := ValidateForMethod(method, in.Card, w.cfg.Now()); err != nil {
		return nil, err
	}

	cmd, err := w.buildCommand(ctx, in, state, c, method)
	if err != nil {
		return nil, err
	}
	estimate := w.Estimate(c)

	o, err := w.orders.CreateOrder(ctx, cmd)
	if err != nil {
		return nil, err
	}

	res = &Result{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Estimate:      estimate,
	}

	if RequiresCard(method) && o.PaymentStatus == order.PaymentPending {
		req := payment.Requester{CustomerID: in.CustomerID, IP: in.IP}
		if in.Use3DS {
			if err := w.holdLines(ctx, in.CustomerID, o.ID, c.Lines()); err != nil {
				return nil, err
			}
			started, err := w.payments.Initialize3D(ctx, req, o.ID, *in.Card)
			if err != nil {
				return nil, err
			}
			res.PaymentID = started.PaymentID
			res.ThreeDSHTMLContent = started.ThreeDSHTMLContent
			logging.FromCtx(ctx).Info("3ds challenge started", "order_id", o.ID)
			return res, nil
		}
		if _, err := w.payments.Initialize(ctx, req, o.ID, *in.Card); err != nil {
			return nil, err
		}
		res.PaymentStatus = order.PaymentPaid
	}

	if err := w.finish(ctx, in.CustomerID, o.ID, c.Lines()); err != nil {
		return nil, err
	}
	w.confirm(res)
	logging.FromCtx(ctx).Info("checkout completed", "order_id", o.ID, "order_number", o.OrderNumber, "payment_method", method)
	return res, nil
}

// VerifyThreeDSCode completes a pending 3-D Secure challenge with the code
// the customer entered and finishes the checkout.
func (w *Workflow) VerifyThreeDSCode(ctx context.Context, customerID, ip, orderID, paymentID, code string) (*Result, error) {
	if !w.payments.AcceptsChallengeCode() {
		return nil, payment.ErrChallengeCodeUnsupported
	}
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return nil, invalid("code", "invalid_3ds_code", "verification code must be 6 digits")
	}

	req := payment.Requester{CustomerID: customerID, IP: ip}
	paid, err := w.payments.CompleteThreeDS(ctx, req, orderID, paymentID, code)
	if err != nil {
		return nil, err
	}
	if err := w.Finalize(ctx, customerID, orderID); err != nil {
		return nil, err
	}

	res := &Result{
		OrderID:       paid.OrderID,
		OrderNumber:   paid.OrderNumber,
		PaymentMethod: order.MethodCreditCard,
		PaymentStatus: order.PaymentPaid,
		PaymentID:     paid.PaymentID,
	}
	w.confirm(res)
	return res, nil
}

// Finalize finishes a checkout whose card payment completed after Submit
// returned. Only the cart lines recorded when the order was placed are
// removed, so items added during the 3-D Secure challenge stay.
func (w *Workflow) Finalize(ctx context.Context, customerID, orderID string) error {
	state, err := w.sessions.Get(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load checkout session: %w", err)
	}
	var lines map[string]int
	if state.Pending != nil && state.Pending.OrderID == orderID {
		lines = state.Pending.Lines
	} else {
		logging.FromCtx(ctx).Warn("no cart lines recorded for paid order, cart left as is", "order_id", orderID)
	}
	return w.finish(ctx, customerID, orderID, lines)
}

// holdLines records what the order was placed from until its payment
// completes.
func (w *Workflow) holdLines(ctx context.Context, customerID, orderID string, lines map[string]int) error {
	state, err := w.sessions.Get(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load checkout session: %w", err)
	}
	state.Pending = &session.PendingCheckout{OrderID: orderID, Lines: lines}
	if err := w.sessions.Save(ctx, state); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

// finish removes the ordered lines from the cart and starts a new checkout
// attempt.
func (w *Workflow) finish(ctx context.Context, customerID, orderID string, lines map[string]int) error {
	if len(lines) > 0 {
		if _, err := w.carts.CheckOut(ctx, customerID, orderID, lines); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	state, err := w.sessions.Get(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load checkout session: %w", err)
	}
	if state.Pending != nil && state.Pending.OrderID == orderID {
		state.Pending = nil
	}
	state.RotateToken()
	if err := w.sessions.Save(ctx, state); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

func (w *Workflow) buildCommand(ctx context.Context, in SubmitInput, state *session.State, c *cart.Cart, method order.PaymentMethod) (command.CreateOrder, error) {
	shipping, err := w.addresses.Find(ctx, in.CustomerID, state.SelectedAddressID)
	if err != nil {
		if errors.Is(err, address.ErrAddressNotFound) {
			return command.CreateOrder{}, invalid(FieldAddress, "address_required", "select a shipping address")
		}
		return command.CreateOrder{}, err
	}

	var billing *address.Address
	if state.BillingAddressID != "" && state.BillingAddressID != state.SelectedAddressID {
		billing, err = w.addresses.Find(ctx, in.CustomerID, state.BillingAddressID)
		if err != nil {
			return command.CreateOrder{}, err
		}
	}

	items := make([]command.OrderLine, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, command.OrderLine{
			ProductID: it.ID,
			Quantity:  it.Quantity,
			Variant:   it.VariantLabel(),
		})
	}

	cmd := command.CreateOrder{
		CustomerID:      in.CustomerID,
		Items:           items,
		ShippingAddress: *shipping,
		BillingAddress:  billing,
		PaymentMethod:   method,
		Notes:           strings.TrimSpace(in.Notes),
		IdempotencyKey:  strings.TrimSpace(in.IdempotencyKey),
	}
	if cmd.IdempotencyKey == "" {
		// A retry of the same cart reuses the pending order; an edited
		// cart is a new order.
		cmd.IdempotencyKey = state.CheckoutToken + ":" + cmd.Fingerprint()[:16]
	}
	return cmd, nil
}

func (w *Workflow) confirm(res *Result) {
	q := url.Values{}
	q.Set("orderId", res.OrderID)
	res.RedirectURL = w.cfg.ConfirmationURL + "?" + q.Encode()
	res.RedirectAfter = int(w.cfg.RedirectAfter / time.Second)
}

func outcome(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "invalid"
	}
	return metrics.Outcome(err)
}
