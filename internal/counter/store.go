// Package counter provides the atomic counter stores backing rate limiting and
// quota tracking: a Redis-backed shared store used by every service instance,
// and an in-process fallback used whenever the shared store is disabled or
// unhealthy.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by a Store when the backing service cannot be
// reached or is in cooldown after a failure. It is the only operational error
// that escapes the store boundary; callers react by switching to a fallback,
// never by failing the request.
var ErrUnavailable = errors.New("counter store unavailable")

// NoExpiry is the TTL value reported for keys without an expiry set.
const NoExpiry = time.Duration(-1)

// Store is the atomic counter contract shared by the Redis adapter and the
// in-process fallback. All operations are safe for concurrent use without
// external locking; Increment in particular must be a single atomic operation
// at the store, never a read-then-write round trip.
type Store interface {
	// Increment atomically adds 1 to the counter at key, creating it at 1 if
	// absent, and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets the key's time-to-live. A key created by Increment has no
	// expiry until one is set.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the counter value and whether the key exists.
	Get(ctx context.Context, key string) (int64, bool, error)

	// TTL returns the remaining time-to-live for key, or NoExpiry when the key
	// is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes the key unconditionally.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backing service is reachable.
	Ping(ctx context.Context) error
}
