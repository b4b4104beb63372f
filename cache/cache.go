// api/cache/cache.go

// Package cache provides the key-value store the overview orchestrator
// uses for cache-aside reads and cross-process computation locks.
package cache

import (
	"context"
	"time"
)

// Store is the capability interface for cache backends. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get retrieves a value. Returns ErrCacheMiss when the key is absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores a value that expires after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// AcquireLock attempts an atomic test-and-set of a lock key that
	// expires after ttl. It returns an owner token and true on success,
	// and false when another owner holds the lock. Expiry makes a lock
	// abandoned by a crashed owner re-acquirable.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// ReleaseLock releases a lock, but only if token still owns it.
	ReleaseLock(ctx context.Context, key string, token string) error

	// Close releases any resources held by the store.
	Close() error
}

// Error represents an error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss indicates the key was not found or has expired.
	ErrCacheMiss Error = "cache miss"
)
