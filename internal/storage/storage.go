package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key has never been written or was deleted
var ErrKeyNotFound = errors.New("key not found")

// ErrClosed is returned by a backend after Close
var ErrClosed = errors.New("storage closed")

// KeyValue is the durable local string store the desktop process keeps
// between launches. It plays the role a browser's localStorage plays for a
// web front-end: session expiry, TTL and the provider's persisted token.
type KeyValue interface {
	// Get returns ErrKeyNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value for key
	Set(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
