package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryEngine is a map-backed engine used by tests and by deployments that
// do not need durability.
type MemoryEngine struct {
	data  map[string][]byte
	mutex sync.RWMutex
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: make(map[string][]byte)}
}

// Put stores a value.
func (e *MemoryEngine) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := make([]byte, len(value))
	copy(copied, value)

	e.mutex.Lock()
	e.data[key] = copied
	e.mutex.Unlock()
	return nil
}

// Get retrieves a value.
func (e *MemoryEngine) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mutex.RLock()
	value, ok := e.data[key]
	e.mutex.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

// Delete removes a key.
func (e *MemoryEngine) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mutex.Lock()
	delete(e.data, key)
	e.mutex.Unlock()
	return nil
}

// List returns all entries under prefix, ordered by key.
func (e *MemoryEngine) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	keys := make([]string, 0, len(e.data))
	for key := range e.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value := e.data[key]
		copied := make([]byte, len(value))
		copy(copied, value)
		entries = append(entries, Entry{Key: key, Value: copied})
	}
	return entries, nil
}

// Close releases engine resources.
func (e *MemoryEngine) Close() error {
	return nil
}
