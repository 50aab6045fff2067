package cache

import (
	"context"
	"fmt"

	"github.com/omnisync/backend/internal/application/bulksync"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend bundles the dedupe store and sync locker chosen for this process
type Backend struct {
	Idempotency shared.IdempotencyStore
	Locker      bulksync.Locker
	// Redis is nil when running on in-process fallbacks
	Redis *redis.Client
}

// Close releases the store and the Redis connection
func (b *Backend) Close() error {
	err := b.Idempotency.Close()
	if b.Redis != nil {
		if cerr := b.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// BackendFactory chooses Redis-backed or in-process implementations
type BackendFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// BackendFactoryOption is a functional option for configuring the factory
type BackendFactoryOption func(*BackendFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) BackendFactoryOption {
	return func(f *BackendFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-process implementations. Default is true.
func WithInMemoryFallback(allow bool) BackendFactoryOption {
	return func(f *BackendFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewBackendFactory creates a new factory
func NewBackendFactory(cfg config.RedisConfig, opts ...BackendFactoryOption) *BackendFactory {
	f := &BackendFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns Redis-backed implementations when Redis is configured and
// reachable, otherwise in-process ones. In-process locks and dedupe do not
// coordinate between instances.
func (f *BackendFactory) Create(ctx context.Context) (*Backend, error) {
	if !f.redisConfig.Enabled() {
		f.logger.Info("Redis not configured, using in-process idempotency store and locker")
		return f.inProcess(), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-process idempotency store and locker",
			zap.Error(err),
		)
		return f.inProcess(), nil
	}

	f.logger.Info("using Redis idempotency store and locker", zap.String("addr", f.redisConfig.Addr()))
	return &Backend{
		Idempotency: NewRedisIdempotencyStore(client, ""),
		Locker:      NewRedisLocker(client, ""),
		Redis:       client,
	}, nil
}

func (f *BackendFactory) inProcess() *Backend {
	return &Backend{
		Idempotency: NewInMemoryIdempotencyStore(),
		Locker:      bulksync.NewLocalLocker(),
	}
}
