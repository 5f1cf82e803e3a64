package store

import (
	"encoding/json"
	"time"
)

// SnapshotEvery is the version interval at which aggregates are snapshotted.
const SnapshotEvery = 10

// Snapshot is an aggregate's serialized state at Version. Loading replays
// only the events after it.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotDue reports whether moving from version before to after crossed
// a snapshot boundary. A batch can move several versions at once.
func SnapshotDue(before, after int) bool {
	return after/SnapshotEvery > before/SnapshotEvery
}
