package payment

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "callback-secret"

// fakeGateway records calls and remembers which order each 3-D payment
// was started for.
type fakeGateway struct {
	authorizeErr error
	completeErr  error
	refundErr    error

	authorizeCalls []AuthorizeRequest
	completeCalls  []string
	refundCalls    []RefundRequest

	started map[string]AuthorizeRequest
	// bankPageOnly hides the challenge code capability.
	bankPageOnly bool
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) AcceptsChallengeCode() bool { return !g.bankPageOnly }

func (g *fakeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	g.authorizeCalls = append(g.authorizeCalls, req)
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return &Result{PaymentID: "pay-1", ConversationID: req.ConversationID, LastFourDigits: LastFour(req.Card.Number), CardBrand: CardBrand(req.Card.Number)}, nil
}

func (g *fakeGateway) Initialize3DS(ctx context.Context, req AuthorizeRequest, callbackURL string) (*ThreeDSResult, error) {
	g.authorizeCalls = append(g.authorizeCalls, req)
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	if g.started == nil {
		g.started = make(map[string]AuthorizeRequest)
	}
	id := "pay-3d"
	if len(g.started) > 0 {
		id = fmt.Sprintf("pay-3d-%d", len(g.started)+1)
	}
	g.started[id] = req
	return &ThreeDSResult{PaymentID: id, ConversationID: req.ConversationID, HTMLContent: "<form action=\"" + callbackURL + "\"></form>"}, nil
}

func (g *fakeGateway) Complete3DS(ctx context.Context, paymentID, conversationData string) (*Result, error) {
	g.completeCalls = append(g.completeCalls, paymentID)
	if g.completeErr != nil {
		return nil, g.completeErr
	}
	req, ok := g.started[paymentID]
	if !ok {
		return nil, &GatewayError{Code: "not_found", Message: "payment not found"}
	}
	return &Result{
		PaymentID:      paymentID,
		ConversationID: req.ConversationID,
		OrderNumber:    req.OrderNumber,
		PaidPrice:      req.PaidPrice,
		LastFourDigits: "0366",
		CardBrand:      "VISA",
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	g.refundCalls = append(g.refundCalls, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &RefundResult{RefundID: "ref-1", PaymentID: req.PaymentID, Amount: req.Amount}, nil
}

func (g *fakeGateway) VerifyCallback(p CallbackPayload) bool {
	return VerifyCallbackHash(testSecret, p)
}

type fixture struct {
	service    *Service
	orders     *order.Service
	gateway    *fakeGateway
	eventStore *mocks.MockEventStore
	order      *order.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eventStore := mocks.NewMockEventStore()
	orders := order.NewService(eventStore)
	gateway := &fakeGateway{}
	service := NewService(orders, gateway, Config{
		ThreeDSCallbackURL: "https://shop.test/api/payments/3d-callback",
		SuccessURL:         "https://shop.test/order-success",
		FailureURL:         "https://shop.test/order-failed",
	})

	f := &fixture{service: service, orders: orders, gateway: gateway, eventStore: eventStore}
	f.order = f.place(t, decimal.NewFromInt(100), 2)
	return f
}

// place stores a pending card order for cust-1.
func (f *fixture) place(t *testing.T, price decimal.Decimal, quantity int) *order.Order {
	t.Helper()
	subtotal := price.Mul(decimal.NewFromInt(int64(quantity)))
	pending, placed, err := order.Prepare(order.PlaceInput{
		CustomerID:      "cust-1",
		CustomerName:    "Ayşe Nur Yılmaz",
		CustomerEmail:   "ayse@example.com",
		Items:           []order.OrderItem{{ProductID: "prod-1", Name: "Mug", Price: price, Quantity: quantity}},
		ShippingAddress: address.Address{FullName: "Ayşe Yılmaz", Phone: "555", Street: "Main 1", City: "Ankara", Country: "Turkey"},
		PaymentMethod:   order.MethodCreditCard,
		Subtotal:        subtotal,
		Tax:             subtotal.Mul(decimal.RequireFromString("0.18")).Round(2),
		ShippingCost:    decimal.NewFromInt(25),
	}, time.Now().UTC())
	require.NoError(t, err)
	_, err = f.eventStore.AppendBatch(context.Background(), []store.PendingEvent{pending})
	require.NoError(t, err)
	o, err := f.orders.Get(context.Background(), placed.OrderID)
	require.NoError(t, err)
	return o
}

func (f *fixture) reload(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.orders.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	return o
}

func owner() Requester { return Requester{CustomerID: "cust-1", IP: "1.2.3.4"} }
func admin() Requester { return Requester{CustomerID: "admin-1", IsAdmin: true} }

func testCard() Card {
	return Card{HolderName: "Ayşe Yılmaz", Number: "4532-0151-1283-0366", ExpireMonth: "12", ExpireYear: "30", CVC: "123"}
}

func signed(p CallbackPayload) CallbackPayload {
	p.Hash = CallbackHash(testSecret, p)
	return p
}

// ============================================
// Initialize Tests
// ============================================

func TestService_Initialize_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())

	require.NoError(t, err)
	assert.Equal(t, "pay-1", res.PaymentID)
	assert.Equal(t, f.order.OrderNumber, res.OrderNumber)

	o := f.reload(t)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, "0366", o.PaymentDetails.LastFourDigits)
	assert.Equal(t, "VISA", o.PaymentDetails.CardBrand)
	assert.Equal(t, "fake", o.PaymentDetails.Provider)
}

func TestService_Initialize_BuildsBasket(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)

	req := f.gateway.authorizeCalls[0]
	assert.Len(t, req.Items, 3)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(261)))
	assert.True(t, req.PaidPrice.Equal(f.order.Total))
	assert.Equal(t, "4532015112830366", req.Card.Number)
	assert.Equal(t, "Ayşe Nur", req.Buyer.Name)
	assert.Equal(t, "Yılmaz", req.Buyer.Surname)
	assert.Equal(t, f.order.ID, req.ConversationID)
}

func TestService_Initialize_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initialize(context.Background(), Requester{CustomerID: "someone-else"}, f.order.ID, testCard())

	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.gateway.authorizeCalls)
}

func TestService_Initialize_AdminAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initialize(context.Background(), admin(), f.order.ID, testCard())

	assert.NoError(t, err)
}

func TestService_Initialize_AlreadyPaid(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)

	_, err = f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())

	assert.ErrorIs(t, err, order.ErrOrderAlreadyPaid)
	assert.Len(t, f.gateway.authorizeCalls, 1)
}

func TestService_Initialize_Declined(t *testing.T) {
	f := newFixture(t)
	f.gateway.authorizeErr = &GatewayError{Code: "10051", Message: "insufficient funds"}

	_, err := f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "insufficient funds", gwErr.Message)
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_Initialize_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initialize(context.Background(), owner(), "missing", testCard())

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// 3-D Secure Tests
// ============================================

func TestService_Initialize3D_LeavesOrderPending(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.Initialize3D(context.Background(), owner(), f.order.ID, testCard())

	require.NoError(t, err)
	assert.Equal(t, "pay-3d", res.PaymentID)
	assert.Contains(t, res.ThreeDSHTMLContent, "https://shop.test/api/payments/3d-callback")
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_CompleteThreeDS(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Initialize3D(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)

	res, err := f.service.CompleteThreeDS(context.Background(), owner(), f.order.ID, "pay-3d", "123456")

	require.NoError(t, err)
	assert.Equal(t, "pay-3d", res.PaymentID)
	assert.Equal(t, order.PaymentPaid, f.reload(t).PaymentStatus)
}

func TestService_CompleteThreeDS_OtherOrdersPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cheap := f.place(t, decimal.NewFromInt(1), 1)
	pricey := f.place(t, decimal.NewFromInt(5000), 1)

	started, err := f.service.Initialize3D(ctx, owner(), cheap.ID, testCard())
	require.NoError(t, err)

	_, err = f.service.CompleteThreeDS(ctx, owner(), pricey.ID, started.PaymentID, "123456")
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	reloaded, err := f.orders.Get(ctx, pricey.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, reloaded.PaymentStatus)

	_, err = f.service.CompleteThreeDS(ctx, owner(), cheap.ID, started.PaymentID, "123456")
	require.NoError(t, err)
	reloaded, err = f.orders.Get(ctx, cheap.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, reloaded.PaymentStatus)
}

func TestService_CompleteThreeDS_BankPageGateway(t *testing.T) {
	f := newFixture(t)
	f.gateway.bankPageOnly = true
	started, err := f.service.Initialize3D(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)

	_, err = f.service.CompleteThreeDS(context.Background(), owner(), f.order.ID, started.PaymentID, "123456")

	assert.ErrorIs(t, err, ErrChallengeCodeUnsupported)
	assert.Empty(t, f.gateway.completeCalls)
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_CompleteThreeDS_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	f.gateway.started = map[string]AuthorizeRequest{
		"pay-x": {ConversationID: f.order.ID, OrderNumber: f.order.OrderNumber, PaidPrice: decimal.NewFromInt(1)},
	}

	_, err := f.service.CompleteThreeDS(context.Background(), owner(), f.order.ID, "pay-x", "123456")

	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestBelongsTo(t *testing.T) {
	o := &order.Order{ID: "order-1", OrderNumber: "ORD-1", Total: decimal.NewFromInt(320)}

	tests := []struct {
		name string
		res  Result
		want bool
	}{
		{"conversation and amount", Result{ConversationID: "order-1", PaidPrice: decimal.NewFromInt(320)}, true},
		{"order number only", Result{OrderNumber: "ORD-1"}, true},
		{"nothing reported", Result{PaymentID: "pay-1"}, false},
		{"other conversation", Result{ConversationID: "order-2"}, false},
		{"other order number", Result{ConversationID: "order-1", OrderNumber: "ORD-2"}, false},
		{"other amount", Result{ConversationID: "order-1", PaidPrice: decimal.NewFromInt(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			assert.Equal(t, tt.want, belongsTo(o, &res))
		})
	}
}

// ============================================
// Callback Tests
// ============================================

func TestService_Process3DCallback_Success(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Initialize3D(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)
	p := signed(CallbackPayload{PaymentID: "pay-3d", ConversationID: f.order.ID, Status: StatusSuccess, ConversationData: "123456"})

	outcome, err := f.service.Process3DCallback(context.Background(), p)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "https://shop.test/order-success?orderId="+f.order.ID, outcome.RedirectURL)
	assert.Equal(t, []string{"pay-3d"}, f.gateway.completeCalls)
	assert.Equal(t, order.PaymentPaid, f.reload(t).PaymentStatus)
}

func TestService_Process3DCallback_OtherOrdersPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cheap := f.place(t, decimal.NewFromInt(1), 1)
	started, err := f.service.Initialize3D(ctx, owner(), cheap.ID, testCard())
	require.NoError(t, err)
	p := signed(CallbackPayload{PaymentID: started.PaymentID, ConversationID: f.order.ID, Status: StatusSuccess, ConversationData: "123456"})

	_, err = f.service.Process3DCallback(ctx, p)

	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_ProcessCallback_Redelivered(t *testing.T) {
	f := newFixture(t)
	p := signed(CallbackPayload{PaymentID: "pay-9", ConversationID: f.order.ID, Status: StatusSuccess})

	_, err := f.service.ProcessCallback(context.Background(), p)
	require.NoError(t, err)
	outcome, err := f.service.ProcessCallback(context.Background(), p)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 2, f.reload(t).Version)
}

func TestService_ProcessCallback_BadHash(t *testing.T) {
	f := newFixture(t)
	p := signed(CallbackPayload{PaymentID: "pay-1", ConversationID: f.order.ID, Status: StatusFailure})
	p.Status = StatusSuccess

	_, err := f.service.ProcessCallback(context.Background(), p)

	assert.ErrorIs(t, err, ErrInvalidCallbackHash)
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_ProcessCallback_Failure(t *testing.T) {
	f := newFixture(t)
	p := signed(CallbackPayload{PaymentID: "pay-1", ConversationID: f.order.ID, Status: StatusFailure, ErrorMessage: "3-D doğrulama başarısız"})

	outcome, err := f.service.ProcessCallback(context.Background(), p)

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	u, err := url.Parse(outcome.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/order-failed", u.Path)
	assert.Equal(t, f.order.ID, u.Query().Get("orderId"))
	assert.Equal(t, "3-D doğrulama başarısız", u.Query().Get("error"))
	assert.Equal(t, order.PaymentPending, f.reload(t).PaymentStatus)
}

func TestService_Process3DCallback_GatewayDecline(t *testing.T) {
	f := newFixture(t)
	f.gateway.completeErr = &GatewayError{Message: "authentication failed"}
	p := signed(CallbackPayload{PaymentID: "pay-3d", ConversationID: f.order.ID, Status: StatusSuccess})

	outcome, err := f.service.Process3DCallback(context.Background(), p)

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "authentication failed", outcome.ErrorMessage)
}

// ============================================
// Refund Tests
// ============================================

func TestService_Refund_PendingOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Refund(context.Background(), admin(), f.order.ID, decimal.Zero, "")

	assert.ErrorIs(t, err, order.ErrOrderNotPaid)
	assert.Empty(t, f.gateway.refundCalls)
}

func TestService_Refund_AdminOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Refund(context.Background(), owner(), f.order.ID, decimal.Zero, "")

	assert.ErrorIs(t, err, ErrAdminOnly)
}

func TestService_Refund_FullAmount(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())
	require.NoError(t, err)

	res, err := f.service.Refund(context.Background(), admin(), f.order.ID, decimal.Zero, "customer request")

	require.NoError(t, err)
	assert.Equal(t, "ref-1", res.RefundID)
	assert.True(t, res.RefundAmount.Equal(f.order.Total))
	assert.Equal(t, "pay-1", f.gateway.refundCalls[0].PaymentID)

	o := f.reload(t)
	assert.Equal(t, order.PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, "customer request", o.RefundDetails.Reason)
}

func TestService_Refund_GatewayError(t *testing.T) {
	f := newFixture(t)
	_, _ = f.service.Initialize(context.Background(), owner(), f.order.ID, testCard())
	f.gateway.refundErr = &GatewayError{Message: "refund window closed"}

	_, err := f.service.Refund(context.Background(), admin(), f.order.ID, decimal.NewFromInt(10), "")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, order.PaymentPaid, f.reload(t).PaymentStatus)
}
