package storage

import (
	"sync"
)

// MemoryStore is an in-memory store, the equivalent of page-lifetime storage.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(v))
	copy(result, v)
	return result, nil
}

// Set implements Store.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, key)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored keys.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// UnavailableStore fails every operation with ErrUnavailable, modelling a
// browser with storage disabled or over quota.
type UnavailableStore struct{}

// Compile-time interface checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = UnavailableStore{}
)

// Get implements Store.
func (UnavailableStore) Get(string) ([]byte, error) { return nil, ErrUnavailable }

// Set implements Store.
func (UnavailableStore) Set(string, []byte) error { return ErrUnavailable }

// Delete implements Store.
func (UnavailableStore) Delete(string) error { return ErrUnavailable }

// Close implements Store.
func (UnavailableStore) Close() error { return nil }
