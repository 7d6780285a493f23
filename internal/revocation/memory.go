package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback. Each entry removes itself when its
// timer fires.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*time.Timer
	closed  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*time.Timer)}
}

func (s *MemoryStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	k := key(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if old, ok := s.entries[k]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A later Revoke may have replaced the entry.
		if s.entries[k] == timer {
			delete(s.entries, k)
		}
	})
	s.entries[k] = timer
	return nil
}

func (s *MemoryStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key(token)]
	return ok, nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops all pending timers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.entries {
		t.Stop()
		delete(s.entries, k)
	}
	s.closed = true
	return nil
}
