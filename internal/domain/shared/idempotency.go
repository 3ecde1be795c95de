package shared

import (
	"context"
	"time"
)

// IdempotencyStore keeps track of idempotency keys that have already been
// accepted, so that redelivered usage events never produce a second effect.
//
// The store is a fast-path filter: the durable invariant lives in the unique
// index on the usage event's idempotency key. Both layers must agree that a
// key wins exactly once.
type IdempotencyStore interface {
	// Record atomically registers an idempotency key with a TTL.
	// Returns true if the key was newly recorded, false if it was already
	// present. Under concurrent calls with the same key exactly one caller
	// receives true.
	Record(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Seen reports whether a key has already been recorded. A key is only
	// recorded after the durable write committed, so a cached key always
	// has a matching event row; one lost to eviction or restart falls
	// through to the unique index.
	Seen(ctx context.Context, key string) (bool, error)

	// Close releases store resources.
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long accepted keys are retained. It must cover the billing
	// period plus a grace window for delayed retries.
	TTL time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration:
// one monthly period plus a 30 day grace window.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL: 61 * 24 * time.Hour,
	}
}
