package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
)

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// Load replays an aggregate, starting from its snapshot when one exists.
// found is false when neither a snapshot nor any event exists for id.
func Load[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (agg T, found bool, err error) {
	agg = newAggregate()

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return agg, false, fmt.Errorf("get snapshot: %w", err)
	}

	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			return agg, false, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		events, err = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = eventStore.GetEvents(ctx, id)
	}
	if err != nil {
		return agg, false, fmt.Errorf("get events: %w", err)
	}

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return agg, false, fmt.Errorf("apply %s: %w", event.EventType, err)
		}
	}

	return agg, snapshot != nil || len(events) > 0, nil
}

// Commit applies freshly stored events to agg and snapshots it when a
// threshold version is crossed. Snapshot failures are logged, not returned.
func Commit(ctx context.Context, eventStore store.EventStoreInterface, agg Aggregate, aggregateType string, events ...store.Event) error {
	before := agg.GetVersion()
	for _, e := range events {
		if id := agg.GetID(); id != "" && e.AggregateID != id {
			continue
		}
		if err := agg.ApplyEvent(e); err != nil {
			return fmt.Errorf("apply %s: %w", e.EventType, err)
		}
	}

	after := agg.GetVersion()
	if store.SnapshotDue(before, after) {
		if err := saveSnapshot(ctx, eventStore, agg, aggregateType); err != nil {
			logging.FromCtx(ctx).Warn("snapshot failed", "aggregate", agg.GetID(), "err", err)
		}
	}
	return nil
}

func saveSnapshot(ctx context.Context, eventStore store.EventStoreInterface, agg Aggregate, aggregateType string) error {
	state, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate state: %w", err)
	}

	return eventStore.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: aggregateType,
		Version:       agg.GetVersion(),
		State:         state,
		CreatedAt:     time.Now(),
	})
}
