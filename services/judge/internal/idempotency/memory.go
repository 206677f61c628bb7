package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore is a development-only in-memory idempotency store.
// WARNING: not suitable for production: state is lost on restart and
// does not work across multiple instances.
type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (s *memoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[eventID]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && s.now().Sub(at) >= s.ttl {
		delete(s.seen, eventID)
		return false, nil
	}
	return true, nil
}

func (s *memoryStore) Mark(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID] = s.now()
	return nil
}
