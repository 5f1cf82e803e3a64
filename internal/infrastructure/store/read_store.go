package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Decoder turns a stored document back into the typed read model of its collection.
type Decoder func(collection string, data []byte) (any, error)

// ReadStore is an in-memory read model store. Documents are kept as JSON so
// callers never share a pointer with the projector.
type ReadStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte // collection -> id -> document
	decode Decoder
}

func NewReadStore(decode Decoder) *ReadStore {
	return &ReadStore{
		data:   make(map[string]map[string][]byte),
		decode: decode,
	}
}

// Set stores a read model
func (rs *ReadStore) Set(ctx context.Context, collection, id string, data any) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.data[collection] == nil {
		rs.data[collection] = make(map[string][]byte)
	}
	rs.data[collection][id] = doc
	return nil
}

// Get retrieves a read model by id
func (rs *ReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	rs.mu.RLock()
	doc, ok := rs.data[collection][id]
	rs.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	v, err := rs.decode(collection, doc)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetAll retrieves all items in a collection ordered by id
func (rs *ReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	rs.mu.RLock()
	ids := make([]string, 0, len(rs.data[collection]))
	for id := range rs.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([][]byte, len(ids))
	for i, id := range ids {
		docs[i] = rs.data[collection][id]
	}
	rs.mu.RUnlock()

	items := make([]any, 0, len(docs))
	for _, doc := range docs {
		v, err := rs.decode(collection, doc)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// Delete removes a read model
func (rs *ReadStore) Delete(ctx context.Context, collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.data[collection], id)
	return nil
}

// Update modifies a read model using an update function
func (rs *ReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	doc, ok := rs.data[collection][id]
	if !ok {
		return false, nil
	}
	current, err := rs.decode(collection, doc)
	if err != nil {
		return false, err
	}
	next, err := json.Marshal(updateFn(current))
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	rs.data[collection][id] = next
	return true, nil
}
