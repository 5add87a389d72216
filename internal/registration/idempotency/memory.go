package idempotency

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often Reserve scans for expired keys.
const sweepInterval = time.Minute

type entry struct {
	code      string
	expiresAt time.Time
}

// InMemory is a process-local Store.
type InMemory struct {
	mu        sync.Mutex
	entries   map[string]entry
	now       func() time.Time
	lastSweep time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]entry), now: time.Now}
}

func (s *InMemory) Reserve(_ context.Context, key string, ttl time.Duration) (Outcome, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if e.code == "" {
			return InFlight, "", nil
		}
		return Completed, e.code, nil
	}
	s.entries[key] = entry{expiresAt: now.Add(ttl)}
	return Reserved, "", nil
}

func (s *InMemory) Complete(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// sweep drops expired keys, at most once per sweepInterval. Callers hold mu.
func (s *InMemory) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
