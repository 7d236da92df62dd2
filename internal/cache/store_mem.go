package cache

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a thread-safe, in-memory implementation of Store.
// Contents do not survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Compile-time interface checks.
var (
	_ Store         = (*MemoryStore)(nil)
	_ StatsReporter = (*MemoryStore)(nil)
)

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Put stores a copy of value, replacing any previous entry.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = slices.Clone(value)
	return nil
}

// Stats reports the entry count and total payload size.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Entries: int64(len(s.entries))}
	for _, v := range s.entries {
		st.Bytes += int64(len(v))
	}
	return st, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
