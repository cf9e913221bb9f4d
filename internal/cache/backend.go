package cache

import (
	"context"
	"time"
)

// CacheBackend is the durable tier behind the typed cache wrappers.
// Implementations store opaque byte values under string keys with a
// per-write TTL.
type CacheBackend interface {
	// Get returns the value, whether the key was present, and any
	// backend error. Expired keys read as absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// GetMultiple returns only the keys that were found.
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMultiple stores a batch under one shared TTL.
	SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	Close() error
}
