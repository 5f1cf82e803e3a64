package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresReadStore keeps every read model as a JSONB document in read_models.
type PostgresReadStore struct {
	db     *sql.DB
	decode Decoder
}

func NewPostgresReadStore(db *sql.DB, decode Decoder) *PostgresReadStore {
	return &PostgresReadStore{db: db, decode: decode}
}

const upsertReadModel = `INSERT INTO read_models (collection, id, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

func (rs *PostgresReadStore) Set(ctx context.Context, collection, id string, data any) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := rs.db.ExecContext(ctx, upsertReadModel, collection, id, doc); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	var doc []byte
	err := rs.db.QueryRowContext(ctx,
		"SELECT data FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	v, err := rs.decode(collection, doc)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (rs *PostgresReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	rows, err := rs.db.QueryContext(ctx,
		"SELECT data FROM read_models WHERE collection = $1 ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		v, err := rs.decode(collection, doc)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	_, err := rs.db.ExecContext(ctx, "DELETE FROM read_models WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update locks the row for the duration of updateFn
func (rs *PostgresReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var doc []byte
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM read_models WHERE collection = $1 AND id = $2 FOR UPDATE",
		collection, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock %s/%s: %w", collection, id, err)
	}

	current, err := rs.decode(collection, doc)
	if err != nil {
		return false, err
	}
	next, err := json.Marshal(updateFn(current))
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx, upsertReadModel, collection, id, next); err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return true, tx.Commit()
}
