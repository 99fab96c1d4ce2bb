package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys that were already accepted so a retried
// client request does not create a second purchase order.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release forgets a key so the request can be retried, used when the
	// guarded operation failed.
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
