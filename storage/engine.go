package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// Entry is one key-value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Engine defines the interface for the durable key-value layer underneath the
// alert store.
type Engine interface {
	// Put stores a value. The write is atomic per key.
	Put(ctx context.Context, key string, value []byte) error

	// Get retrieves a value, ErrKeyNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases engine resources.
	Close() error
}
