package payment

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/shopspring/decimal"
)

const defaultFailureMessage = "payment failed"

type Config struct {
	Currency           string
	CallbackURL        string
	ThreeDSCallbackURL string
	SuccessURL         string
	FailureURL         string
}

// Requester is the authenticated caller of a payment operation.
type Requester struct {
	CustomerID string
	IsAdmin    bool
	IP         string
}

func (r Requester) canAccess(o *order.Order) bool {
	return r.IsAdmin || (r.CustomerID != "" && r.CustomerID == o.CustomerID)
}

type Initialized struct {
	PaymentID   string `json:"paymentId"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

type ThreeDSInitialized struct {
	ThreeDSHTMLContent string `json:"threeDSHtmlContent"`
	OrderID            string `json:"orderId"`
	OrderNumber        string `json:"orderNumber"`
	PaymentID          string `json:"paymentId"`
}

// CallbackOutcome tells the callback handler where to send the browser.
type CallbackOutcome struct {
	OrderID      string
	CustomerID   string
	Success      bool
	ErrorMessage string
	RedirectURL  string
}

type Refunded struct {
	RefundID     string          `json:"refundId"`
	OrderID      string          `json:"orderId"`
	OrderNumber  string          `json:"orderNumber"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
}

type Service struct {
	orders  *order.Service
	gateway Gateway
	cfg     Config
}

func NewService(orders *order.Service, gateway Gateway, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "TRY"
	}
	return &Service{orders: orders, gateway: gateway, cfg: cfg}
}

func (s *Service) Provider() string { return s.gateway.Name() }

// AcceptsChallengeCode reports whether 3-D Secure codes may be entered on
// the storefront for the configured gateway.
func (s *Service) AcceptsChallengeCode() bool {
	g, ok := s.gateway.(ChallengeCodeGateway)
	return ok && g.AcceptsChallengeCode()
}

// Initialize charges the card directly and marks the order paid.
func (s *Service) Initialize(ctx context.Context, req Requester, orderID string, card Card) (*Initialized, error) {
	o, err := s.loadPayable(ctx, req, orderID)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Authorize(ctx, s.buildRequest(o, card, req.IP))
	if err != nil {
		s.observe("direct", err)
		logging.FromCtx(ctx).Warn("payment declined", "order_id", o.ID, "err", err)
		return nil, err
	}
	if err := s.finalize(ctx, o, res); err != nil {
		s.observe("direct", err)
		return nil, err
	}
	s.observe("direct", nil)

	return &Initialized{PaymentID: res.PaymentID, OrderID: o.ID, OrderNumber: o.OrderNumber}, nil
}

// Initialize3D starts a 3-D Secure authorization. The order stays pending
// until the challenge is completed.
func (s *Service) Initialize3D(ctx context.Context, req Requester, orderID string, card Card) (*ThreeDSInitialized, error) {
	o, err := s.loadPayable(ctx, req, orderID)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Initialize3DS(ctx, s.buildRequest(o, card, req.IP), s.cfg.ThreeDSCallbackURL)
	if err != nil {
		s.observe("3ds_init", err)
		logging.FromCtx(ctx).Warn("3ds initialization failed", "order_id", o.ID, "err", err)
		return nil, err
	}
	s.observe("3ds_init", nil)

	return &ThreeDSInitialized{
		ThreeDSHTMLContent: res.HTMLContent,
		OrderID:            o.ID,
		OrderNumber:        o.OrderNumber,
		PaymentID:          res.PaymentID,
	}, nil
}

// CompleteThreeDS finishes a challenge with the code the customer entered.
func (s *Service) CompleteThreeDS(ctx context.Context, req Requester, orderID, paymentID, code string) (*Initialized, error) {
	if !s.AcceptsChallengeCode() {
		return nil, ErrChallengeCodeUnsupported
	}
	o, err := s.loadPayable(ctx, req, orderID)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Complete3DS(ctx, paymentID, code)
	if err != nil {
		s.observe("3ds_complete", err)
		return nil, err
	}
	if err := s.finalize(ctx, o, res); err != nil {
		s.observe("3ds_complete", err)
		return nil, err
	}
	s.observe("3ds_complete", nil)

	return &Initialized{PaymentID: res.PaymentID, OrderID: o.ID, OrderNumber: o.OrderNumber}, nil
}

// ProcessCallback handles the gateway's notification of a direct payment.
func (s *Service) ProcessCallback(ctx context.Context, p CallbackPayload) (*CallbackOutcome, error) {
	return s.handleCallback(ctx, p, false)
}

// Process3DCallback handles the return from the 3-D Secure page and
// completes the authorization with the gateway.
func (s *Service) Process3DCallback(ctx context.Context, p CallbackPayload) (*CallbackOutcome, error) {
	return s.handleCallback(ctx, p, true)
}

func (s *Service) handleCallback(ctx context.Context, p CallbackPayload, complete bool) (*CallbackOutcome, error) {
	if !s.gateway.VerifyCallback(p) {
		logging.FromCtx(ctx).Warn("rejected payment callback", "conversation_id", p.ConversationID)
		return nil, ErrInvalidCallbackHash
	}
	if p.ConversationID == "" || p.PaymentID == "" {
		return nil, ErrInvalidCallback
	}

	o, err := s.orders.Get(ctx, p.ConversationID)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusSuccess {
		return s.failed(o, p.ErrorMessage), nil
	}

	res := &Result{PaymentID: p.PaymentID, ConversationID: p.ConversationID}
	if complete {
		res, err = s.gateway.Complete3DS(ctx, p.PaymentID, p.ConversationData)
		if err != nil {
			s.observe("3ds_callback", err)
			var gwErr *GatewayError
			if errors.As(err, &gwErr) {
				return s.failed(o, gwErr.Message), nil
			}
			return nil, err
		}
	}

	if err := s.finalize(ctx, o, res); err != nil {
		s.observe("callback", err)
		return nil, err
	}
	s.observe("callback", nil)

	return &CallbackOutcome{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Success:     true,
		RedirectURL: withQuery(s.cfg.SuccessURL, url.Values{"orderId": {o.ID}}),
	}, nil
}

func (s *Service) failed(o *order.Order, message string) *CallbackOutcome {
	if message == "" {
		message = defaultFailureMessage
	}
	return &CallbackOutcome{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		ErrorMessage: message,
		RedirectURL:  withQuery(s.cfg.FailureURL, url.Values{"orderId": {o.ID}, "error": {message}}),
	}
}

// Refund returns money for a paid order. Only admins may refund; an
// amount of zero refunds the full total.
func (s *Service) Refund(ctx context.Context, req Requester, orderID string, amount decimal.Decimal, reason string) (*Refunded, error) {
	if !req.IsAdmin {
		return nil, ErrAdminOnly
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refundAmount, err := order.RefundAmount(o, amount)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Refund(ctx, RefundRequest{
		ConversationID: o.ID,
		PaymentID:      o.PaymentDetails.PaymentID,
		Amount:         refundAmount,
		Currency:       s.cfg.Currency,
		IP:             req.IP,
		Reason:         reason,
	})
	if err != nil {
		metrics.Refunds.WithLabelValues("declined").Inc()
		return nil, err
	}

	err = s.orders.MarkRefunded(ctx, o, order.RefundDetails{
		RefundID: res.RefundID,
		Amount:   refundAmount,
		Reason:   reason,
	})
	metrics.Refunds.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	logging.FromCtx(ctx).Info("order refunded", "order_id", o.ID, "refund_id", res.RefundID, "amount", refundAmount.String())
	return &Refunded{
		RefundID:     res.RefundID,
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		RefundAmount: refundAmount,
	}, nil
}

func (s *Service) loadPayable(ctx context.Context, req Requester, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !req.canAccess(o) {
		return nil, ErrForbidden
	}
	if err := order.CheckPayable(o); err != nil {
		return nil, err
	}
	return o, nil
}

// finalize records the captured payment. A repeated notification for the
// payment already recorded is a no-op.
func (s *Service) finalize(ctx context.Context, o *order.Order, res *Result) error {
	if !belongsTo(o, res) {
		logging.FromCtx(ctx).Warn("payment does not match order",
			"order_id", o.ID, "payment_id", res.PaymentID, "conversation_id", res.ConversationID)
		return ErrPaymentMismatch
	}
	if o.PaymentDetails != nil && o.PaymentDetails.PaymentID == res.PaymentID {
		return nil
	}
	conversationID := res.ConversationID
	if conversationID == "" {
		conversationID = o.ID
	}
	err := s.orders.MarkPaid(ctx, o, order.PaymentDetails{
		PaymentID:      res.PaymentID,
		Provider:       s.gateway.Name(),
		ConversationID: conversationID,
		LastFourDigits: res.LastFourDigits,
		CardBrand:      res.CardBrand,
	})
	if err != nil {
		return err
	}
	logging.FromCtx(ctx).Info("order paid", "order_id", o.ID, "payment_id", res.PaymentID)
	return nil
}

// belongsTo reports whether the gateway's record of a payment was started
// for o. At least one identifier must be reported and none may differ.
func belongsTo(o *order.Order, res *Result) bool {
	if res.ConversationID == "" && res.OrderNumber == "" {
		return false
	}
	if res.ConversationID != "" && res.ConversationID != o.ID {
		return false
	}
	if res.OrderNumber != "" && res.OrderNumber != o.OrderNumber {
		return false
	}
	return res.PaidPrice.IsZero() || res.PaidPrice.Equal(o.Total)
}

func (s *Service) buildRequest(o *order.Order, card Card, ip string) AuthorizeRequest {
	items := make([]BasketItem, 0, len(o.Items)+2)
	price := decimal.Zero
	for _, item := range o.Items {
		line := item.LineTotal()
		items = append(items, BasketItem{ID: item.ProductID, Name: item.Name, Category: "General", Price: line})
		price = price.Add(line)
	}
	if o.Tax.IsPositive() {
		items = append(items, BasketItem{ID: "tax", Name: "VAT", Category: "Tax", Price: o.Tax})
		price = price.Add(o.Tax)
	}
	if o.ShippingCost.IsPositive() {
		items = append(items, BasketItem{ID: "shipping", Name: "Shipping", Category: "Shipping", Price: o.ShippingCost})
		price = price.Add(o.ShippingCost)
	}

	name, surname := splitName(o.CustomerName)
	if name == "" {
		name, surname = splitName(o.ShippingAddress.FullName)
	}

	card.Number = NormalizeCardNumber(card.Number)
	return AuthorizeRequest{
		ConversationID: o.ID,
		OrderNumber:    o.OrderNumber,
		Price:          price,
		PaidPrice:      o.Total,
		Currency:       s.cfg.Currency,
		Card:           card,
		Buyer: Buyer{
			ID:             o.CustomerID,
			Name:           name,
			Surname:        surname,
			Email:          o.CustomerEmail,
			Phone:          o.ShippingAddress.Phone,
			IP:             ip,
			Address:        o.Billing(),
		},
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.Billing(),
		Items:           items,
	}
}

func (s *Service) observe(flow string, err error) {
	outcome := metrics.Outcome(err)
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		outcome = "declined"
	}
	metrics.Payments.WithLabelValues(s.gateway.Name(), flow, outcome).Inc()
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	existing := u.Query()
	for k, v := range q {
		existing[k] = v
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
