package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

// ============================================
// Append Tests
// ============================================

func TestEventStore_Append_AssignsSequentialVersions(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	e1, err := es.Append(ctx, "order-1", "Order", "OrderPlaced", map[string]string{"a": "b"})
	require.NoError(t, err)
	e2, err := es.Append(ctx, "order-1", "Order", "OrderPaid", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, 2, e2.Version)

	events, err := es.GetEvents(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.JSONEq(t, `{"a":"b"}`, string(events[0].Data))
}

func TestEventStore_Append_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	es := NewEventStore(pub)

	_, err := es.Append(context.Background(), "cart-1", "Cart", "CartCleared", struct{}{})
	require.NoError(t, err)

	assert.Equal(t, []string{"cart-1"}, pub.keys)
}

func TestEventStore_Append_PublishFailureIsReported(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := NewEventStore(pub)

	_, err := es.Append(context.Background(), "cart-1", "Cart", "CartCleared", struct{}{})
	assert.Error(t, err)
}

// ============================================
// AppendBatch Tests
// ============================================

func TestEventStore_AppendBatch_CommitsAll(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	_, _ = es.Append(ctx, "prod-1", "Inventory", "StockAdded", struct{}{})

	events, err := es.AppendBatch(ctx, []PendingEvent{
		{AggregateID: "prod-1", AggregateType: "Inventory", EventType: "StockDecremented", Data: struct{}{}, ExpectedVersion: 1},
		{AggregateID: "order-1", AggregateType: "Order", EventType: "OrderPlaced", Data: struct{}{}, ExpectedVersion: 0},
		{AggregateID: "cust-1", AggregateType: "Customer", EventType: "OrderAppended", Data: struct{}{}, ExpectedVersion: AnyVersion},
	})

	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Version)
	assert.Equal(t, 1, events[1].Version)

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestEventStore_AppendBatch_VersionConflictWritesNothing(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	_, _ = es.Append(ctx, "prod-1", "Inventory", "StockAdded", struct{}{})
	_, _ = es.Append(ctx, "prod-1", "Inventory", "StockDecremented", struct{}{})

	_, err := es.AppendBatch(ctx, []PendingEvent{
		{AggregateID: "order-1", AggregateType: "Order", EventType: "OrderPlaced", Data: struct{}{}, ExpectedVersion: 0},
		{AggregateID: "prod-1", AggregateType: "Inventory", EventType: "StockDecremented", Data: struct{}{}, ExpectedVersion: 1},
	})

	assert.ErrorIs(t, err, ErrVersionConflict)
	orderEvents, _ := es.GetEvents(ctx, "order-1")
	assert.Empty(t, orderEvents)
	prodEvents, _ := es.GetEvents(ctx, "prod-1")
	assert.Len(t, prodEvents, 2)
}

func TestEventStore_AppendBatch_Empty(t *testing.T) {
	es := NewEventStore(nil)
	_, err := es.AppendBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestEventStore_AppendBatch_ConcurrentWritersOneWins(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	_, _ = es.Append(ctx, "prod-1", "Inventory", "StockAdded", struct{}{})

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = es.AppendBatch(ctx, []PendingEvent{
				{AggregateID: "prod-1", AggregateType: "Inventory", EventType: "StockDecremented", Data: struct{}{}, ExpectedVersion: 1},
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, ok)
}

// ============================================
// Snapshot Tests
// ============================================

func TestEventStore_Snapshots(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	s, err := es.GetSnapshot(ctx, "order-1")
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID:   "order-1",
		AggregateType: "Order",
		Version:       10,
		State:         []byte(`{"id":"order-1"}`),
		CreatedAt:     time.Now(),
	}))

	s, err = es.GetSnapshot(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 10, s.Version)
}

func TestSnapshotDue(t *testing.T) {
	assert.False(t, SnapshotDue(0, 9))
	assert.True(t, SnapshotDue(9, 10))
	assert.True(t, SnapshotDue(8, 12))
	assert.False(t, SnapshotDue(10, 19))
	assert.True(t, SnapshotDue(19, 31))
}

func TestEventStore_GetEventsFromVersion(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = es.Append(ctx, "cart-1", "Cart", "ItemAdded", struct{}{})
	}

	events, err := es.GetEventsFromVersion(ctx, "cart-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].Version)
}
