package memory

import (
	"context"
	"sync"
	"time"
)

type record struct {
	value    []byte
	storedAt time.Time
}

// Store implements CacheBackend using an in-memory map.
// This is for testing purposes only.
type Store struct {
	records map[string]record
	mu      sync.RWMutex
}

// NewStore creates a new in-memory cache backing store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]record),
	}
}

// Load retrieves the entry for key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}

	value := make([]byte, len(r.value))
	copy(value, r.value)
	return value, r.storedAt, true, nil
}

// Store writes or overwrites the entry for key.
func (s *Store) Store(ctx context.Context, key string, value []byte, storedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.records[key] = record{value: stored, storedAt: storedAt}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]record)
	return nil
}
