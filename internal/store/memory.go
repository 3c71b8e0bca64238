package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It uses a map for storage and RWMutex for thread-safe concurrent access.
// This implementation is suitable for development, testing, or single-instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// NewMemoryStoreFrom creates an in-memory store pre-populated with values.
func NewMemoryStoreFrom(values map[string]string) *MemoryStore {
	m := NewMemoryStore()
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// List returns a copy of all stored pairs.
func (m *MemoryStore) List(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result, nil
}

// Get retrieves a single value by key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Put stores value under key.
func (m *MemoryStore) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes key from memory.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: no error if key doesn't exist
	delete(m.values, key)
	return nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}
