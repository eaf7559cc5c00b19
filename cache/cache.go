package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the freshness window applied when New is given a
// non-positive TTL. Thirty seconds is long enough to collapse a burst of
// duplicate reads during a page lifecycle and short enough that a stale
// identity never survives a navigation.
const DefaultTTL = 30 * time.Second

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Store memoizes values under string keys for a fixed TTL. An entry older
// than the TTL is treated as absent. All methods are safe for concurrent
// use.
type Store[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry[V]
}

// New creates an empty store with the given TTL.
func New[V any](ttl time.Duration) *Store[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value stored under key if it is younger than the TTL.
// Expired entries are removed on the spot.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Since(e.storedAt) >= s.ttl {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the current timestamp, replacing any
// previous entry. Expired entries elsewhere in the store are swept
// opportunistically so the map does not accumulate dead keys between
// invalidations.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.entries {
		if now.Sub(e.storedAt) >= s.ttl {
			delete(s.entries, k)
		}
	}
	s.entries[key] = entry[V]{value: value, storedAt: now}
}

// Invalidate removes every entry whose key contains pattern. An empty
// pattern clears the store entirely.
func (s *Store[V]) Invalidate(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pattern == "" {
		s.entries = make(map[string]entry[V])
		return
	}
	for k := range s.entries {
		if strings.Contains(k, pattern) {
			delete(s.entries, k)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
