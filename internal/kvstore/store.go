// Package kvstore provides the shared key-value store every stateless handler
// coordinates through: session records, the login lock, folder scan caches,
// and sliding-window rate-limit logs.
//
// Two backends exist. Redis is the deployment backend. Memory is the degraded
// local mode used when no Redis endpoint is configured and in tests; it only
// coordinates goroutines within one process.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrStore wraps backend failures so callers can tell store outages apart
// from upstream failures.
var ErrStore = errors.New("kvstore: backend error")

// WindowResult is the outcome of one sliding-window check.
type WindowResult struct {
	Allowed bool
	// Count is the number of markers in the window after the check.
	Count int
	// Oldest is the timestamp of the oldest marker still inside the window,
	// or the check time when the window is empty.
	Oldest time.Time
}

// Store is the minimal contract the gateway needs from its shared store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value at key. ok is false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent. Reports whether it wrote.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if its current value equals expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Incr atomically increments the integer at key, creating it at 0 first.
	Incr(ctx context.Context, key string) (int64, error)

	// SlidingWindow prunes markers at or older than now-window, counts the
	// rest, and records member at now only when count < limit. The whole
	// step is atomic with respect to other callers on the same key.
	SlidingWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int, member string) (WindowResult, error)

	// Close releases backend resources.
	Close() error
}
