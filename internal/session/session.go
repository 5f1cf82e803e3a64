package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State is the per-customer checkout context: which address and payment
// method are selected, and the token that identifies the current checkout attempt.
// It is stored as one document and overwritten wholesale.
type State struct {
	CustomerID        string    `json:"customerId"`
	SelectedAddressID string    `json:"selectedAddressId,omitempty"`
	BillingAddressID  string    `json:"billingAddressId,omitempty"`
	PaymentMethod     string    `json:"paymentMethod,omitempty"`
	CheckoutToken     string    `json:"checkoutToken"`
	UpdatedAt         time.Time `json:"updatedAt"`

	Pending *PendingCheckout `json:"pending,omitempty"`
}

// PendingCheckout records the cart lines an unpaid order was placed from.
// Only those quantities leave the cart once the order is paid. It is
// replaced wholesale, never mutated in place.
type PendingCheckout struct {
	OrderID string         `json:"orderId"`
	Lines   map[string]int `json:"lines"`
}

// RotateToken starts a new checkout attempt.
func (s *State) RotateToken() {
	s.CheckoutToken = uuid.NewString()
}

type Store interface {
	// Get returns a fresh state with a token when the customer has none yet.
	Get(ctx context.Context, customerID string) (*State, error)
	Save(ctx context.Context, state *State) error
}

func fresh(customerID string) *State {
	s := &State{CustomerID: customerID}
	s.RotateToken()
	return s
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]State)}
}

func (m *MemoryStore) Get(ctx context.Context, customerID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[customerID]
	if !ok {
		return fresh(customerID), nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	m.data[state.CustomerID] = *state
	return nil
}

// RedisStore keeps sessions as JSON strings under "checkout:session:<customer>".
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(customerID string) string { return "checkout:session:" + customerID }

func (r *RedisStore) Get(ctx context.Context, customerID string) (*State, error) {
	raw, err := r.rdb.Get(ctx, redisKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fresh(customerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		// a corrupt document starts a new session
		return fresh(customerID), nil
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, state *State) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKey(state.CustomerID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
