package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/domain/address"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/cache"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler     *Handler
	eventStore  *mocks.MockEventStore
	inventory   *inventory.Service
	orders      *order.Service
	customers   *customer.Service
	idempotency *cache.MemoryIdempotencyStore
}

func newTestHandler() *testEnv {
	eventStore := mocks.NewMockEventStore()
	idem := cache.NewMemoryIdempotencyStore(time.Hour)
	env := &testEnv{
		eventStore:  eventStore,
		inventory:   inventory.NewService(eventStore),
		orders:      order.NewService(eventStore),
		customers:   customer.NewService(eventStore),
		idempotency: idem,
	}
	env.handler = NewHandler(
		eventStore,
		product.NewService(eventStore),
		env.inventory,
		cart.NewService(eventStore),
		env.orders,
		env.customers,
		idem,
		pricing.NewCalculator(pricing.DefaultTaxRate, pricing.DefaultFlatShipping()),
	)
	return env
}

func (e *testEnv) seedCustomer(id string) {
	_ = e.eventStore.AddEvent(id, customer.AggregateType, customer.EventCustomerRegistered, customer.CustomerRegistered{
		CustomerID: id, Email: id + "@example.com", Name: "Test Customer", Role: customer.RoleCustomer,
	})
}

func (e *testEnv) seedProduct(id string, price string, stock int) {
	_ = e.eventStore.AddEvent(id, product.AggregateType, product.EventProductCreated, product.ProductCreated{
		ProductID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), Images: []string{"https://img.test/" + id + ".jpg"},
	})
	if stock > 0 {
		_ = e.eventStore.AddEvent(inventory.StreamID(id), inventory.AggregateType, inventory.EventStockAdded, inventory.StockAdded{
			ProductID: id, Quantity: stock,
		})
	}
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	inv, err := e.inventory.Get(context.Background(), productID)
	require.NoError(t, err)
	return inv.Stock
}

func orderCmd(lines ...OrderLine) CreateOrder {
	return CreateOrder{
		CustomerID:      "cust-1",
		Items:           lines,
		ShippingAddress: address.Address{ID: "addr-1", FullName: "Ali Veli", Street: "Main 1", City: "Ankara", Country: "Turkey"},
		PaymentMethod:   order.MethodCashOnDelivery,
	}
}

// ============================================
// Product Tests
// ============================================

func TestHandler_CreateProduct_Success(t *testing.T) {
	env := newTestHandler()

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{
		Name: "Test Product", Description: "A test product", Price: decimal.NewFromInt(1000), Stock: 50,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, env.eventStore.AppendCalls, 2)
	assert.Equal(t, product.EventProductCreated, env.eventStore.AppendCalls[0].EventType)
	assert.Equal(t, inventory.EventStockAdded, env.eventStore.AppendCalls[1].EventType)
	assert.Equal(t, 50, env.stock(t, p.ID))
}

func TestHandler_CreateProduct_NoStock(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.CreateProduct(context.Background(), CreateProduct{Name: "Test", Price: decimal.NewFromInt(10)})

	require.NoError(t, err)
	assert.Len(t, env.eventStore.AppendCalls, 1)
}

func TestHandler_CreateProduct_Invalid(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()

	_, err := env.handler.CreateProduct(ctx, CreateProduct{Name: "", Price: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, product.ErrInvalidName)

	_, err = env.handler.CreateProduct(ctx, CreateProduct{Name: "Test", Price: decimal.Zero})
	assert.ErrorIs(t, err, product.ErrInvalidPrice)

	_, err = env.handler.CreateProduct(ctx, CreateProduct{Name: "Test", Price: decimal.NewFromInt(1), Stock: -1})
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestHandler_RestockProduct(t *testing.T) {
	env := newTestHandler()
	env.seedProduct("prod-1", "10", 2)

	inv, err := env.handler.RestockProduct(context.Background(), RestockProduct{ProductID: "prod-1", Quantity: 3})

	require.NoError(t, err)
	assert.Equal(t, 5, inv.Stock)

	_, err = env.handler.RestockProduct(context.Background(), RestockProduct{ProductID: "missing", Quantity: 3})
	assert.ErrorIs(t, err, product.ErrProductNotFound)
}

// ============================================
// Cart Tests
// ============================================

func TestHandler_AddToCart_FillsFromProduct(t *testing.T) {
	env := newTestHandler()
	env.seedProduct("prod-1", "42.50", 10)

	c, err := env.handler.AddToCart(context.Background(), AddToCart{CustomerID: "cust-1", ProductID: "prod-1", Quantity: 2})

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "Product prod-1", c.Items[0].Name)
	assert.True(t, decimal.RequireFromString("42.50").Equal(c.Items[0].Price))
	assert.Equal(t, "https://img.test/prod-1.jpg", c.Items[0].Image)
}

func TestHandler_AddToCart_KeepsClientPrice(t *testing.T) {
	env := newTestHandler()
	env.seedProduct("prod-1", "42.50", 10)

	price := decimal.NewFromInt(40)
	c, err := env.handler.AddToCart(context.Background(), AddToCart{
		CustomerID: "cust-1", ProductID: "prod-1", Quantity: 1, Price: &price, Name: "Promo mug",
	})

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(c.Items[0].Price))
	assert.Equal(t, "Promo mug", c.Items[0].Name)
}

func TestHandler_AddToCart_KeepsCoercedZeroPrice(t *testing.T) {
	env := newTestHandler()
	env.seedProduct("prod-1", "42.50", 10)

	zero := decimal.Zero
	c, err := env.handler.AddToCart(context.Background(), AddToCart{CustomerID: "cust-1", ProductID: "prod-1", Quantity: 1, Price: &zero})

	require.NoError(t, err)
	assert.True(t, c.Items[0].Price.IsZero())
}

func TestHandler_AddToCart_UnknownProduct(t *testing.T) {
	env := newTestHandler()

	_, err := env.handler.AddToCart(context.Background(), AddToCart{CustomerID: "cust-1", ProductID: "nope", Quantity: 1})

	assert.ErrorIs(t, err, product.ErrProductNotFound)
}

// ============================================
// Create Order Tests
// ============================================

func TestHandler_CreateOrder_Success(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	env.seedProduct("prod-2", "50", 5)

	o, err := env.handler.CreateOrder(context.Background(), orderCmd(
		OrderLine{ProductID: "prod-1", Quantity: 2},
		OrderLine{ProductID: "prod-2", Quantity: 1},
	))

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(250).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(45).Equal(o.Tax))
	assert.True(t, decimal.NewFromInt(25).Equal(o.ShippingCost))
	assert.True(t, decimal.NewFromInt(320).Equal(o.Total))
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "cust-1@example.com", o.CustomerEmail)
	assert.NotEmpty(t, o.OrderNumber)
	assert.Equal(t, 1, o.Version)

	require.Len(t, env.eventStore.AppendBatchCalls, 1)
	assert.Len(t, env.eventStore.AppendBatchCalls[0], 4)
	assert.Equal(t, 3, env.stock(t, "prod-1"))
	assert.Equal(t, 4, env.stock(t, "prod-2"))

	c, err := env.customers.Get(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, c.OrderIDs)
}

func TestHandler_CreateOrder_FlatShippingAboveThreshold(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "600", 1)

	o, err := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1}))

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(108).Equal(o.Tax))
	assert.True(t, decimal.NewFromInt(25).Equal(o.ShippingCost))
	assert.True(t, decimal.NewFromInt(733).Equal(o.Total))
}

func TestHandler_CreateOrder_InsufficientStock(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 1)

	o, err := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 2}))

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Nil(t, o)
	assert.Empty(t, env.eventStore.AppendBatchCalls)
	assert.Equal(t, 1, env.stock(t, "prod-1"))
}

func TestHandler_CreateOrder_VariantLinesShareStock(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 3)

	_, err := env.handler.CreateOrder(context.Background(), orderCmd(
		OrderLine{ProductID: "prod-1", Quantity: 2, Variant: "size: M"},
		OrderLine{ProductID: "prod-1", Quantity: 2, Variant: "size: L"},
	))

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 3, env.stock(t, "prod-1"))
}

func TestHandler_CreateOrder_NotFound(t *testing.T) {
	env := newTestHandler()
	env.seedProduct("prod-1", "100", 1)

	_, err := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1}))
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound)

	env.seedCustomer("cust-1")
	_, err = env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "ghost", Quantity: 1}))
	assert.ErrorIs(t, err, product.ErrProductNotFound)
	assert.Empty(t, env.eventStore.AppendBatchCalls)
}

func TestHandler_CreateOrder_Empty(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")

	_, err := env.handler.CreateOrder(context.Background(), orderCmd())

	assert.ErrorIs(t, err, order.ErrEmptyOrder)
}

func TestHandler_CreateOrder_ConcurrentStockChange(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	env.eventStore.AppendBatchErr = store.ErrVersionConflict

	_, err := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1}))

	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 5, env.stock(t, "prod-1"))
	c, _ := env.customers.Get(context.Background(), "cust-1")
	assert.Empty(t, c.OrderIDs)
}

// ============================================
// Idempotency Tests
// ============================================

func TestHandler_CreateOrder_IdempotentRetry(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1})
	cmd.IdempotencyKey = "key-1"

	first, err := env.handler.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	second, err := env.handler.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, env.eventStore.AppendBatchCalls, 1)
	assert.Equal(t, 4, env.stock(t, "prod-1"))
}

func TestHandler_CreateOrder_KeyReusedWithDifferentContent(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	env.seedProduct("prod-2", "50", 5)
	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1})
	cmd.IdempotencyKey = "key-1"
	_, err := env.handler.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	edited := orderCmd(OrderLine{ProductID: "prod-2", Quantity: 2})
	edited.IdempotencyKey = "key-1"
	o, err := env.handler.CreateOrder(context.Background(), edited)

	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
	assert.Nil(t, o)
	assert.Len(t, env.eventStore.AppendBatchCalls, 1)
	assert.Equal(t, 5, env.stock(t, "prod-2"))
}

func TestHandler_CreateOrder_RememberedOrderIDWithoutFingerprint(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1})
	first, err := env.handler.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	require.NoError(t, env.idempotency.Remember(context.Background(), idempotencyScope, "cust-1:key-1", first.ID))

	cmd.IdempotencyKey = "key-1"
	second, err := env.handler.CreateOrder(context.Background(), cmd)

	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateOrder_Fingerprint(t *testing.T) {
	base := orderCmd(
		OrderLine{ProductID: "prod-1", Quantity: 2},
		OrderLine{ProductID: "prod-2", Quantity: 1, Variant: "size: M"},
	)

	reordered := orderCmd(
		OrderLine{ProductID: "prod-2", Quantity: 1, Variant: "size: M"},
		OrderLine{ProductID: "prod-1", Quantity: 2},
	)
	reordered.Notes = "leave at the door"
	reordered.ShippingAddress.IsDefault = true
	assert.Equal(t, base.Fingerprint(), reordered.Fingerprint())

	tests := []struct {
		name   string
		modify func(*CreateOrder)
	}{
		{"quantity", func(c *CreateOrder) { c.Items[0].Quantity = 3 }},
		{"variant", func(c *CreateOrder) { c.Items[1].Variant = "size: L" }},
		{"dropped line", func(c *CreateOrder) { c.Items = c.Items[:1] }},
		{"shipping address", func(c *CreateOrder) { c.ShippingAddress.Street = "Side 2" }},
		{"billing address", func(c *CreateOrder) { c.BillingAddress = &address.Address{ID: "addr-2", City: "Izmir"} }},
		{"payment method", func(c *CreateOrder) { c.PaymentMethod = order.MethodCreditCard }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := orderCmd(base.Items...)
			changed.Items = append([]OrderLine(nil), base.Items...)
			tt.modify(&changed)
			assert.NotEqual(t, base.Fingerprint(), changed.Fingerprint())
		})
	}
}

func TestHandler_CreateOrder_KeyReleasedOnFailure(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 1)
	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 2})
	cmd.IdempotencyKey = "key-1"

	_, err := env.handler.CreateOrder(context.Background(), cmd)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	cmd.Items[0].Quantity = 1
	o, err := env.handler.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestHandler_CreateOrder_InFlightDuplicate(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	locked, err := env.idempotency.TryLock(context.Background(), idempotencyScope, "cust-1:key-1")
	require.NoError(t, err)
	require.True(t, locked)

	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1})
	cmd.IdempotencyKey = "key-1"
	_, err = env.handler.CreateOrder(context.Background(), cmd)

	assert.ErrorIs(t, err, ErrDuplicateInFlight)
}

func TestHandler_CreateOrder_ParallelDuplicatesCreateOne(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	cmd := orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1})
	cmd.IdempotencyKey = "key-1"

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.handler.CreateOrder(context.Background(), cmd)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, env.stock(t, "prod-1"))
}

// ============================================
// Order Status Tests
// ============================================

func TestHandler_UpdateOrderStatus_ShipWithTracking(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	o, _ := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1}))

	_, err := env.handler.UpdateOrderStatus(context.Background(), UpdateOrderStatus{OrderID: o.ID, Status: order.StatusProcessing})
	require.NoError(t, err)
	updated, err := env.handler.UpdateOrderStatus(context.Background(), UpdateOrderStatus{OrderID: o.ID, Status: order.StatusShipped, TrackingNumber: "TRK-1"})
	require.NoError(t, err)

	assert.Equal(t, order.StatusShipped, updated.Status)
	assert.Equal(t, "TRK-1", updated.TrackingNumber)
}

func TestHandler_UpdateOrderStatus_CancelRestocks(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	o, _ := env.handler.CreateOrder(context.Background(), orderCmd(
		OrderLine{ProductID: "prod-1", Quantity: 1, Variant: "size: M"},
		OrderLine{ProductID: "prod-1", Quantity: 2, Variant: "size: L"},
	))
	require.Equal(t, 2, env.stock(t, "prod-1"))

	updated, err := env.handler.UpdateOrderStatus(context.Background(), UpdateOrderStatus{OrderID: o.ID, Status: order.StatusCancelled, Reason: "customer request"})

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)
	assert.Equal(t, 5, env.stock(t, "prod-1"))
}

func TestHandler_UpdateOrderStatus_InvalidTransition(t *testing.T) {
	env := newTestHandler()
	env.seedCustomer("cust-1")
	env.seedProduct("prod-1", "100", 5)
	o, _ := env.handler.CreateOrder(context.Background(), orderCmd(OrderLine{ProductID: "prod-1", Quantity: 1}))

	_, err := env.handler.UpdateOrderStatus(context.Background(), UpdateOrderStatus{OrderID: o.ID, Status: order.StatusDelivered})

	assert.ErrorIs(t, err, order.ErrInvalidStatus)

	_, err = env.handler.UpdateOrderStatus(context.Background(), UpdateOrderStatus{OrderID: "missing", Status: order.StatusProcessing})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
