package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStorage is the ephemeral store: namespaced keys with TTLs for job
// status/progress/activity, distributed locks, and robots/sitemap caches.
// The database remains the source of truth; everything here is rebuildable.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SetNX sets the key only if absent (SETNX semantics). Returns true when
	// the key was set, false when it already existed.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes the key only if its current value matches,
	// atomically. Returns true when the key was deleted.
	CompareAndDelete(ctx context.Context, key string, value string) (bool, error)

	// Extend refreshes the TTL of an existing key without changing its value.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}
