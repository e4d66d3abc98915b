package cache

import (
	"context"
	"sync"
)

// MemoryPredictionStore keeps predictions in process memory for the life
// of the process. No TTL, no eviction.
type MemoryPredictionStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{
		items: make(map[string][]byte),
	}
}

// Get retrieves a value from the store.
func (s *MemoryPredictionStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	value, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// PutIfAbsent inserts value under key unless it is already set.
// The check and the insert happen under one write lock.
func (s *MemoryPredictionStore) PutIfAbsent(_ context.Context, key string, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok {
		return existing, false, nil
	}

	// Copy to decouple from caller's buffer
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	s.items[key] = valueCopy

	return valueCopy, true, nil
}

// Len returns the number of resolved keys.
func (s *MemoryPredictionStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Clear removes all items. Tests only; the predictor never calls it.
func (s *MemoryPredictionStore) Clear() {
	s.mu.Lock()
	s.items = make(map[string][]byte)
	s.mu.Unlock()
}
