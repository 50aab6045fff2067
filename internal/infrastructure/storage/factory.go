package storage

import (
	"context"

	"go.uber.org/zap"

	returnsapp "github.com/omnisync/backend/internal/application/returns"
	infraconfig "github.com/omnisync/backend/internal/infrastructure/config"
)

// NewLabelStore returns an S3 store when a bucket is configured, an in-memory one otherwise
func NewLabelStore(ctx context.Context, cfg infraconfig.StorageConfig, logger *zap.Logger) (returnsapp.LabelStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bucket == "" {
		logger.Warn("No label bucket configured, return labels are kept in memory")
		return NewMemoryLabelStore(), nil
	}
	store, err := NewS3LabelStore(ctx, &cfg, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("Return labels stored in S3", zap.String("bucket", cfg.Bucket))
	return store, nil
}
