package counter

import (
	"context"
	"sync"
	"time"
)

// memEntry tracks one in-process counter. A zero resetAt means no expiry has
// been set yet.
type memEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the process-local fallback implementation of Store. It is
// used whenever the shared store is disabled, unconfigured, or in cooldown.
//
// Known limitation, accepted by design: each instance enforces its own
// independent ceiling, so under horizontal scale-out the effective aggregate
// ceiling is up to N× the configured limit while the shared store is down.
// Correctness is relaxed, availability is not.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	stopCh  chan struct{}
	stopped sync.Once

	// now is swappable for deterministic window tests.
	now func() time.Time
}

// NewMemoryStore creates a MemoryStore and starts its background sweeper.
// The sweep runs on a fixed wall-clock cadence, decoupled from request volume,
// and removes entries whose expiry has passed to bound memory growth.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	s := &MemoryStore{
		entries: make(map[string]*memEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go s.sweep(sweepInterval)

	return s
}

// sweep periodically removes expired entries
func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, e := range s.entries {
				if !e.resetAt.IsZero() && now.After(e.resetAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the background sweeper.
func (s *MemoryStore) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

// expired reports whether e's expiry has passed. Callers hold s.mu.
func (s *MemoryStore) expired(e *memEntry) bool {
	return !e.resetAt.IsZero() && s.now().After(e.resetAt)
}

// Increment atomically increments key, resurrecting expired entries at 1.
func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		e = &memEntry{}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Expire sets the key's time-to-live. Missing keys are a no-op.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !s.expired(e) {
		e.resetAt = s.now().Add(ttl)
	}
	return nil
}

// Get returns the counter value and whether the key exists (and has not expired).
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return 0, false, nil
	}
	return e.count, true, nil
}

// TTL returns the remaining time-to-live, or NoExpiry when the key is absent,
// expired, or has no expiry set.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) || e.resetAt.IsZero() {
		return NoExpiry, nil
	}
	return e.resetAt.Sub(s.now()), nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Ping always succeeds; the process-local store has no transport to fail.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
