package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// EvictionCause tags why an entry left the store.
type EvictionCause string

const (
	CauseExpired  EvictionCause = "expired"
	CauseRemoved  EvictionCause = "removed"
	CauseCapacity EvictionCause = "capacity"
	CauseReplaced EvictionCause = "replaced"
)

// EvictionFunc observes entries leaving the store. It runs without the store
// lock held and may call back into the store.
type EvictionFunc[V any] func(key string, value V, cause EvictionCause)

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
	priority   Priority
}

type eviction[V any] struct {
	key   string
	value V
	cause EvictionCause
}

// Store is a bounded in-memory cache with absolute and sliding expiry and
// priority-aware capacity eviction.
type Store[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	maxEntries int
	sliding    time.Duration
	clock      clock.Clock
	onEvict    EvictionFunc[V]
}

// NewStore creates a store holding at most maxEntries evictable entries.
// A non-positive maxEntries means unbounded.
func NewStore[V any](maxEntries int, clk clock.Clock, onEvict EvictionFunc[V]) *Store[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Store[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: maxEntries,
		sliding:    SlidingExpiration,
		clock:      clk,
		onEvict:    onEvict,
	}
}

// Get returns a live entry and slides its inactivity window.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	if s.expired(e, now) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.notify([]eviction[V]{{key, e.value, CauseExpired}})
		return zero, false
	}
	e.lastAccess = now
	v := e.value
	s.mu.Unlock()
	return v, true
}

// Set stores a value for ttl. Storing over an existing key reports the old
// value as replaced; making room reports the victim as a capacity eviction.
func (s *Store[V]) Set(key string, value V, ttl time.Duration, priority Priority) {
	now := s.clock.Now()
	var evicted []eviction[V]

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		delete(s.entries, key)
		evicted = append(evicted, eviction[V]{key, old.value, CauseReplaced})
	}
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		evicted = append(evicted, s.purgeExpired(now)...)
	}
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		if victim, ok := s.victim(); ok {
			e := s.entries[victim]
			delete(s.entries, victim)
			evicted = append(evicted, eviction[V]{victim, e.value, CauseCapacity})
		}
	}
	s.entries[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
		priority:   priority,
	}
	s.mu.Unlock()

	s.notify(evicted)
}

// Remove deletes a key and reports whether it was present.
func (s *Store[V]) Remove(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if ok {
		s.notify([]eviction[V]{{key, e.value, CauseRemoved}})
	}
	return ok
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops every expired entry and returns how many were dropped.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	evicted := s.purgeExpired(s.clock.Now())
	s.mu.Unlock()

	s.notify(evicted)
	return len(evicted)
}

// Run sweeps on every interval until ctx is done.
func (s *Store[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store[V]) expired(e *entry[V], now time.Time) bool {
	return !now.Before(e.expiresAt) || now.Sub(e.lastAccess) >= s.sliding
}

// purgeExpired must be called with s.mu held.
func (s *Store[V]) purgeExpired(now time.Time) []eviction[V] {
	var out []eviction[V]
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
			out = append(out, eviction[V]{k, e.value, CauseExpired})
		}
	}
	return out
}

// victim picks the lowest-priority, least recently used evictable entry.
// Must be called with s.mu held.
func (s *Store[V]) victim() (string, bool) {
	var (
		key   string
		best  *entry[V]
		found bool
	)
	for k, e := range s.entries {
		if e.priority == PriorityNeverEvict {
			continue
		}
		if !found || e.priority < best.priority ||
			(e.priority == best.priority && e.lastAccess.Before(best.lastAccess)) {
			key, best, found = k, e, true
		}
	}
	return key, found
}

func (s *Store[V]) notify(evicted []eviction[V]) {
	if s.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		s.onEvict(ev.key, ev.value, ev.cause)
	}
}
