package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db        *sql.DB
	publisher Publisher
}

func NewPostgresEventStore(db *sql.DB, publisher Publisher) *PostgresEventStore {
	return &PostgresEventStore{
		db:        db,
		publisher: publisher,
	}
}

// Append stores an event in PostgreSQL and publishes it
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
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

// AppendBatch inserts all events in one transaction. The unique
// (aggregate_id, version) index turns a concurrent writer into ErrVersionConflict.
func (es *PostgresEventStore) AppendBatch(ctx context.Context, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, ErrEmptyBatch
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	staged := make(map[string]int)
	committed := make([]Event, 0, len(pending))
	now := time.Now().UTC()

	for _, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p.EventType, err)
		}

		current, ok := staged[p.AggregateID]
		if !ok {
			err = tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
				p.AggregateID,
			).Scan(&current)
			if err != nil {
				return nil, fmt.Errorf("read version of %s: %w", p.AggregateID, err)
			}
		}
		if p.ExpectedVersion != AnyVersion && p.ExpectedVersion != current {
			return nil, fmt.Errorf("%w: %s expected %d, at %d", ErrVersionConflict, p.AggregateID, p.ExpectedVersion, current)
		}

		event := Event{
			ID:            uuid.New().String(),
			AggregateID:   p.AggregateID,
			AggregateType: p.AggregateType,
			EventType:     p.EventType,
			Data:          jsonData,
			Timestamp:     now,
			Version:       current + 1,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			[]byte(event.Data),
			event.Version,
			event.Timestamp,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return nil, fmt.Errorf("%w: %s version %d taken", ErrVersionConflict, p.AggregateID, event.Version)
			}
			return nil, fmt.Errorf("insert event: %w", err)
		}
		staged[p.AggregateID] = event.Version
		committed = append(committed, event)
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("commit: %w", err)
	}

	if err := publishAll(ctx, es.publisher, committed); err != nil {
		return committed, fmt.Errorf("publish events: %w", err)
	}
	return committed, nil
}

// GetEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events for an aggregate newer than fromVersion
func (es *PostgresEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// GetAllEvents returns all events from PostgreSQL
func (es *PostgresEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 ORDER BY created_at ASC, version ASC`,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveSnapshot upserts the latest snapshot of an aggregate
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET aggregate_type = EXCLUDED.aggregate_type, version = EXCLUDED.version,
		     state = EXCLUDED.state, created_at = EXCLUDED.created_at`,
		snapshot.AggregateID, snapshot.AggregateType, snapshot.Version, []byte(snapshot.State), snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns nil when the aggregate has no snapshot yet
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	var state []byte
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &state, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	s.State = json.RawMessage(state)
	return &s, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(ctx context.Context, connStr string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return db, nil
}

// Schema is applied on boot by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id             UUID PRIMARY KEY,
	aggregate_id   TEXT        NOT NULL,
	aggregate_type TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	data           JSONB       NOT NULL,
	version        INTEGER     NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	version        INTEGER     NOT NULL,
	state          JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_models (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
