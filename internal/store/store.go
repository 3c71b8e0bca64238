package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("key not found")

// Store is a flat string-to-string key/value mapping. Values are opaque to
// the store; the rule store layers its record format on top.
// Implementations must be thread-safe, and a Put must replace the whole value
// atomically so concurrent readers never observe a torn record.
type Store interface {
	// List returns every key/value pair currently held.
	// Returns an empty map if the store is empty.
	List(ctx context.Context) (map[string]string, error)

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put creates or replaces the value stored under key.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Returns no error if the key doesn't exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	// After Close is called, the store should not be used.
	Close() error
}
