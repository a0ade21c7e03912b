package testutils

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockImageStore is an in-memory object store for page images.
type MockImageStore struct {
	mu      sync.Mutex
	present map[string]bool

	// Err, when set, is returned by every probe.
	Err error

	probes atomic.Int32
}

// NewMockImageStore creates a store holding keys.
func NewMockImageStore(keys ...string) *MockImageStore {
	s := &MockImageStore{present: make(map[string]bool)}
	for _, k := range keys {
		s.present[k] = true
	}
	return s
}

// Put adds key to the store.
func (s *MockImageStore) Put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[key] = true
}

func (s *MockImageStore) Exists(ctx context.Context, key string) (bool, error) {
	s.probes.Add(1)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	return s.present[key], nil
}

func (s *MockImageStore) URL(key string) string {
	return "https://images.test/file/" + key + ".png"
}

// Probes is the number of Exists calls.
func (s *MockImageStore) Probes() int {
	return int(s.probes.Load())
}
