package store

import (
	"context"
	"errors"
)

// AnyVersion skips the optimistic version check for a pending event.
const AnyVersion = -1

var (
	ErrVersionConflict = errors.New("aggregate version conflict")
	ErrEmptyBatch      = errors.New("event batch is empty")
)

// PendingEvent is an event that has not been persisted yet.
// ExpectedVersion is the aggregate version the writer observed before
// producing the event; AnyVersion disables the check.
type PendingEvent struct {
	AggregateID     string
	AggregateType   string
	EventType       string
	Data            any
	ExpectedVersion int
}

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	// AppendBatch stores every pending event or none of them.
	AppendBatch(ctx context.Context, pending []PendingEvent) ([]Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Publisher delivers committed events to the projection side.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	// Set stores a read model
	Set(ctx context.Context, collection, id string, data any) error

	// Get retrieves a read model by id
	Get(ctx context.Context, collection, id string) (any, bool, error)

	// GetAll retrieves all items in a collection
	GetAll(ctx context.Context, collection string) ([]any, error)

	// Delete removes a read model
	Delete(ctx context.Context, collection, id string) error

	// Update modifies a read model using an update function
	Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error)
}

// publishAll pushes events to the publisher in commit order.
func publishAll(ctx context.Context, p Publisher, events []Event) error {
	if p == nil {
		return nil
	}
	for _, e := range events {
		if err := p.Publish(ctx, e.AggregateID, e); err != nil {
			return err
		}
	}
	return nil
}
