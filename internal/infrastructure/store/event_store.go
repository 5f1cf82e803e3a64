package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore keeps events in memory and hands them to a publisher after commit.
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	snapshots map[string]*Snapshot
	seq       []Event // commit order
	publisher Publisher
}

func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
	}
}

// Append stores a single event without a version check
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	events, err := es.AppendBatch(ctx, []PendingEvent{{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		EventType:       eventType,
		Data:            data,
		ExpectedVersion: AnyVersion,
	}})
	if err != nil {
		return nil, err
	}
	return &events[0], nil
}

// AppendBatch validates every expected version under one lock and commits all events or none
func (es *EventStore) AppendBatch(ctx context.Context, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, ErrEmptyBatch
	}

	encoded := make([]json.RawMessage, len(pending))
	for i, p := range pending {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p.EventType, err)
		}
		encoded[i] = data
	}

	es.mu.Lock()
	staged := make(map[string]int)
	committed := make([]Event, 0, len(pending))
	now := time.Now()
	for i, p := range pending {
		current, ok := staged[p.AggregateID]
		if !ok {
			current = len(es.events[p.AggregateID])
		}
		if p.ExpectedVersion != AnyVersion && p.ExpectedVersion != current {
			es.mu.Unlock()
			return nil, fmt.Errorf("%w: %s expected %d, at %d", ErrVersionConflict, p.AggregateID, p.ExpectedVersion, current)
		}
		staged[p.AggregateID] = current + 1
		committed = append(committed, Event{
			ID:            uuid.New().String(),
			AggregateID:   p.AggregateID,
			AggregateType: p.AggregateType,
			EventType:     p.EventType,
			Data:          encoded[i],
			Timestamp:     now,
			Version:       current + 1,
		})
	}
	for _, e := range committed {
		es.events[e.AggregateID] = append(es.events[e.AggregateID], e)
	}
	es.seq = append(es.seq, committed...)
	es.mu.Unlock()

	if err := publishAll(ctx, es.publisher, committed); err != nil {
		return committed, fmt.Errorf("publish events: %w", err)
	}
	return committed, nil
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

// GetEventsFromVersion returns events after the given version
func (es *EventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var out []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in commit order
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	all := append([]Event(nil), es.seq...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	cp := *snapshot
	es.snapshots[snapshot.AggregateID] = &cp
	return nil
}

func (es *EventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	s, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}
