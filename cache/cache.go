package cache

import (
	"context"
	"time"
)

// Cache is a key/value store with write timestamps. A maxAge of 0 accepts
// entries of any age.
type Cache interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent or older than maxAge.
	Get(ctx context.Context, key string, maxAge time.Duration) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// RemoveAll deletes every entry.
	RemoveAll(ctx context.Context) error
	// Close releases the backend's resources.
	Close() error
}

// Expired reports whether an entry written at storedAt is older than maxAge
// at now.
func Expired(storedAt, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(storedAt) > maxAge
}
