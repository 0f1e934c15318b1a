// Package cache is the cache-aside layer in front of the user directory.
package cache

import (
	"context"
	"time"
)

// Store is a TTL-aware key-value store.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	// Set writes val for key, replacing any prior value, until ttl elapses.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}
