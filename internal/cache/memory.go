package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Backend. Entries are kept until overwritten or
// deleted; staleness is decided by the Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.entries[key]
	return payload, ok, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	m.entries[key] = payload
	m.mu.Unlock()
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
