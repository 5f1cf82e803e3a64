package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-process counterpart of RedisIdempotencyStore.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]time.Time
	vals  map[string]entry
	now   func() time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:   ttl,
		locks: make(map[string]time.Time),
		vals:  make(map[string]entry),
		now:   time.Now,
	}
}

func (s *MemoryIdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := lockKey(scope, key)
	if exp, ok := s.locks[k]; ok && s.now().Before(exp) {
		return false, nil
	}
	s.locks[k] = s.now().Add(s.ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockKey(scope, key))
	return nil
}

func (s *MemoryIdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[mapKey(scope, key)] = entry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.vals[mapKey(scope, key)]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}
