// Package cache provides a process local, TTL bound key value store built on
// go-cache. It backs the response cache and the image existence memo. Entries
// are best effort: nothing survives a restart.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCleanupInterval is how often expired entries are purged when no
	// interval is configured.
	DefaultCleanupInterval = time.Minute
)

// Store is a typed TTL cache. It is safe for concurrent use; a reader never
// observes a partially written value since values are replaced wholesale.
type Store[V any] struct {
	ttl   time.Duration
	items *gocache.Cache
}

// New creates a store whose entries expire after ttl. A ttl of zero or less
// disables caching: Set becomes a no-op and Get always misses.
func New[V any](ttl, cleanupInterval time.Duration) *Store[V] {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	return &Store[V]{
		ttl:   ttl,
		items: gocache.New(ttl, cleanupInterval),
	}
}

// Get returns the value for key if it exists and has not expired.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	if s.ttl <= 0 {
		return zero, false
	}

	x, found := s.items.Get(key)
	if !found {
		return zero, false
	}

	v, ok := x.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores value under key with the store's TTL, replacing any previous
// entry.
func (s *Store[V]) Set(key string, value V) {
	if s.ttl <= 0 {
		return
	}
	s.items.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores value with an explicit TTL.
func (s *Store[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.items.Set(key, value, ttl)
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	s.items.Delete(key)
}

// Flush drops every entry.
func (s *Store[V]) Flush() {
	s.items.Flush()
}

// Len reports the number of entries, including expired entries that have not
// been purged yet.
func (s *Store[V]) Len() int {
	return s.items.ItemCount()
}

// TTL returns the default entry lifetime.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}
