package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	log       []store.Event // every event in commit order
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls      []AppendCall
	AppendBatchCalls [][]store.PendingEvent
	AppendErr        error
	AppendBatchErr   error
	SnapshotsSaved   int
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:    make(map[string][]store.Event),
		snapshots: make(map[string]*store.Snapshot),
	}
}

func (m *MockEventStore) newEvent(aggregateID, aggregateType, eventType string, data any) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}
	return store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       len(m.events[aggregateID]) + 1,
	}, nil
}

// Append stores an event in memory
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	event, err := m.newEvent(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return nil, err
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.log = append(m.log, event)
	return &event, nil
}

// AppendBatch checks versions and stores all events or none
func (m *MockEventStore) AppendBatch(ctx context.Context, pending []store.PendingEvent) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendBatchCalls = append(m.AppendBatchCalls, pending)
	if m.AppendBatchErr != nil {
		return nil, m.AppendBatchErr
	}
	if len(pending) == 0 {
		return nil, store.ErrEmptyBatch
	}

	for _, p := range pending {
		current := len(m.events[p.AggregateID])
		if p.ExpectedVersion != store.AnyVersion && p.ExpectedVersion != current {
			return nil, fmt.Errorf("%w: %s", store.ErrVersionConflict, p.AggregateID)
		}
	}

	out := make([]store.Event, 0, len(pending))
	for _, p := range pending {
		event, err := m.newEvent(p.AggregateID, p.AggregateType, p.EventType, p.Data)
		if err != nil {
			return nil, err
		}
		m.events[p.AggregateID] = append(m.events[p.AggregateID], event)
		m.log = append(m.log, event)
		out = append(out, event)
	}
	return out, nil
}

// GetEvents returns events for an aggregate
func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.events[aggregateID]...), nil
}

func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in commit order
func (m *MockEventStore) GetAllEvents(ctx context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.log...), nil
}

func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
	m.SnapshotsSaved++
	return nil
}

func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[aggregateID], nil
}

// AddEvent adds a single event for testing
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := m.newEvent(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return err
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.log = append(m.log, event)
	return nil
}

// EventsFor returns the stored events of one aggregate without recording a call
func (m *MockEventStore) EventsFor(aggregateID string) []store.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.events[aggregateID]...)
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.log = nil
	m.snapshots = make(map[string]*store.Snapshot)
	m.AppendCalls = nil
	m.AppendBatchCalls = nil
	m.AppendErr = nil
	m.AppendBatchErr = nil
	m.SnapshotsSaved = 0
}
