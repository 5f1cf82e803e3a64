package inventory

import (
	"context"
	"testing"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInventoryService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore), eventStore
}

// ============================================
// AddStock / Get Tests
// ============================================

func TestService_Get_NeverStocked(t *testing.T) {
	service, _ := newTestInventoryService()

	inv, err := service.Get(context.Background(), "prod-1")

	require.NoError(t, err)
	assert.Equal(t, 0, inv.Stock)
	assert.Equal(t, 0, inv.Version)
	assert.Equal(t, "inventory-prod-1", inv.ID)
}

func TestService_AddStock(t *testing.T) {
	service, eventStore := newTestInventoryService()
	ctx := context.Background()

	_, err := service.AddStock(ctx, "prod-1", 10)
	require.NoError(t, err)
	inv, err := service.AddStock(ctx, "prod-1", 5)
	require.NoError(t, err)

	assert.Equal(t, 15, inv.Stock)
	assert.Equal(t, 2, inv.Version)
	assert.Equal(t, "inventory-prod-1", eventStore.AppendCalls[0].AggregateID)
}

func TestService_AddStock_InvalidQuantity(t *testing.T) {
	service, eventStore := newTestInventoryService()

	_, err := service.AddStock(context.Background(), "prod-1", 0)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, eventStore.AppendCalls)
}

// ============================================
// Decrement / Restore Tests
// ============================================

func TestPrepareDecrement(t *testing.T) {
	inv := &Inventory{ID: "inventory-prod-1", ProductID: "prod-1", Stock: 3, Version: 4}

	ev, err := PrepareDecrement(inv, "order-1", 3)

	require.NoError(t, err)
	assert.Equal(t, 4, ev.ExpectedVersion)
	assert.Equal(t, EventStockDecremented, ev.EventType)
	assert.Equal(t, "inventory-prod-1", ev.AggregateID)
}

func TestPrepareDecrement_InsufficientStock(t *testing.T) {
	inv := &Inventory{ID: "inventory-prod-1", ProductID: "prod-1", Stock: 2}

	_, err := PrepareDecrement(inv, "order-1", 3)

	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestDecrementThenRestore(t *testing.T) {
	service, eventStore := newTestInventoryService()
	ctx := context.Background()
	_, _ = service.AddStock(ctx, "prod-1", 5)
	inv, _ := service.Get(ctx, "prod-1")

	dec, err := PrepareDecrement(inv, "order-1", 2)
	require.NoError(t, err)
	_, err = eventStore.AppendBatch(ctx, []store.PendingEvent{dec})
	require.NoError(t, err)

	inv, _ = service.Get(ctx, "prod-1")
	assert.Equal(t, 3, inv.Stock)

	_, err = eventStore.AppendBatch(ctx, []store.PendingEvent{PrepareRestore("prod-1", "order-1", 2)})
	require.NoError(t, err)

	inv, _ = service.Get(ctx, "prod-1")
	assert.Equal(t, 5, inv.Stock)
}

func TestDecrement_StaleVersionConflicts(t *testing.T) {
	service, eventStore := newTestInventoryService()
	ctx := context.Background()
	_, _ = service.AddStock(ctx, "prod-1", 5)
	stale, _ := service.Get(ctx, "prod-1")
	_, _ = service.AddStock(ctx, "prod-1", 1)

	dec, err := PrepareDecrement(stale, "order-1", 1)
	require.NoError(t, err)
	_, err = eventStore.AppendBatch(ctx, []store.PendingEvent{dec})

	assert.ErrorIs(t, err, store.ErrVersionConflict)
}
