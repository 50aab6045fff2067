package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys, such as webhook delivery ids,
// for a bounded time.
type IdempotencyStore interface {
	// MarkProcessed records key for ttl. It returns false when key was already
	// recorded and has not expired.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is recorded and not expired
	IsProcessed(ctx context.Context, key string) (bool, error)

	Close() error
}

// IdempotencyConfig holds configuration for delivery de-duplication
type IdempotencyConfig struct {
	// TTL bounds how long a key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled turns de-duplication on. Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
