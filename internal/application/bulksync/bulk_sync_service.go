package bulksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

var (
	// ErrSyncInProgress is returned when another run holds the lock for the same integration and kind
	ErrSyncInProgress = errors.New("bulksync: a sync is already in progress for this integration")
	// ErrSyncUnsupported is returned when the platform has no pull API
	ErrSyncUnsupported = errors.New("bulksync: platform does not support bulk pulls")
	// ErrInvalidSyncKind is returned for unknown sync kinds
	ErrInvalidSyncKind = errors.New("bulksync: invalid sync kind")
	// ErrLockNotObtained is returned by lockers when the key is held elsewhere
	ErrLockNotObtained = errors.New("bulksync: lock not obtained")
)

// Lock is a held distributed lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks by key
type Locker interface {
	// Obtain returns ErrLockNotObtained when the key is already held
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Config holds the bulk sync tuning knobs
type Config struct {
	LockTTL  time.Duration
	MaxPages int
	// Lookback bounds the first incremental run of an integration
	Lookback time.Duration
}

// DefaultConfig returns default bulk sync configuration
func DefaultConfig() Config {
	return Config{
		LockTTL:  30 * time.Minute,
		MaxPages: 500,
		Lookback: 30 * 24 * time.Hour,
	}
}

// Deps wires the bulk sync service
type Deps struct {
	Integrations integration.IntegrationRepository
	Batches      integration.SyncBatchRepository
	Jobs         integration.JobRepository
	Pullers      []integration.ChannelPuller
	Locker       Locker
	Clock        shared.Clock
	Logger       *zap.Logger
}

// BulkSyncService pulls pages from a channel and enqueues one job per item.
// It never reconciles inline: a failing item cannot abort its batch.
type BulkSyncService struct {
	integrations integration.IntegrationRepository
	batches      integration.SyncBatchRepository
	jobs         integration.JobRepository
	pullers      map[integration.PlatformCode]integration.ChannelPuller
	locker       Locker
	clock        shared.Clock
	config       Config
	logger       *zap.Logger
}

// NewBulkSyncService creates a new BulkSyncService
func NewBulkSyncService(deps Deps, config Config) *BulkSyncService {
	defaults := DefaultConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	pullers := make(map[integration.PlatformCode]integration.ChannelPuller, len(deps.Pullers))
	for _, p := range deps.Pullers {
		pullers[p.Platform()] = p
	}
	return &BulkSyncService{
		integrations: deps.Integrations,
		batches:      deps.Batches,
		jobs:         deps.Jobs,
		pullers:      pullers,
		locker:       deps.Locker,
		clock:        deps.Clock,
		config:       config,
		logger:       deps.Logger,
	}
}

// Supports reports whether a platform can be bulk synced
func (s *BulkSyncService) Supports(p integration.PlatformCode) bool {
	_, ok := s.pullers[p]
	return ok
}

// Run executes one bulk sync. When since is nil the run continues from the
// start of the last completed batch, or from the configured lookback.
func (s *BulkSyncService) Run(ctx context.Context, integrationID uuid.UUID, kind integration.SyncKind, since *time.Time) (*integration.SyncBatch, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncKind, kind)
	}
	integ, err := s.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !integ.Active {
		return nil, integration.ErrIntegrationInactive
	}
	puller, ok := s.pullers[integ.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSyncUnsupported, integ.Provider)
	}

	lockKey := fmt.Sprintf("sync:%s:%s", integ.ID, kind)
	lock, err := s.locker.Obtain(ctx, lockKey, s.config.LockTTL)
	if errors.Is(err, ErrLockNotObtained) {
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain sync lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release sync lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	if since == nil {
		since, err = s.resumePoint(ctx, integ.ID, kind)
		if err != nil {
			return nil, err
		}
	}

	batch := integration.NewSyncBatch(integ.ID, kind, since, s.clock.Now())
	if err := s.batches.Save(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info("Bulk sync started",
		zap.String("batch_id", batch.ID.String()),
		zap.String("integration_id", integ.ID.String()),
		zap.String("provider", string(integ.Provider)),
		zap.String("kind", string(kind)),
	)

	if err := s.pullAll(ctx, puller, integ, batch); err != nil {
		batch.Fail(err.Error(), s.clock.Now())
		if saveErr := s.batches.Save(context.WithoutCancel(ctx), batch); saveErr != nil {
			s.logger.Error("Failed to mark batch failed", zap.Error(saveErr))
		}
		s.logger.Error("Bulk sync failed",
			zap.String("batch_id", batch.ID.String()),
			zap.Int("pages", batch.Pages),
			zap.Int("items_enqueued", batch.ItemsEnqueued),
			zap.Error(err),
		)
		return batch, err
	}

	batch.Complete(s.clock.Now())
	if err := s.batches.Save(ctx, batch); err != nil {
		return batch, err
	}
	s.logger.Info("Bulk sync completed",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("pages", batch.Pages),
		zap.Int("items_enqueued", batch.ItemsEnqueued),
	)
	return batch, nil
}

func (s *BulkSyncService) pullAll(ctx context.Context, puller integration.ChannelPuller, integ *integration.Integration, batch *integration.SyncBatch) error {
	cursor := ""
	for page := 0; page < s.config.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := puller.Pull(ctx, integ, batch.Kind, batch.Since, cursor)
		if err != nil {
			return fmt.Errorf("pull page %d: %w", page+1, err)
		}

		now := s.clock.Now()
		jobs := make([]*integration.ReconcileJob, 0, len(result.Items))
		for _, item := range result.Items {
			job := integration.NewReconcileJob(item.Kind, integ.ID, item.ExternalID, item.Payload, now)
			job.BatchID = &batch.ID
			jobs = append(jobs, job)
		}
		if len(jobs) > 0 {
			if err := s.jobs.Save(ctx, jobs...); err != nil {
				return fmt.Errorf("enqueue page %d: %w", page+1, err)
			}
		}
		batch.RecordPage(len(jobs))
		if err := s.batches.Save(ctx, batch); err != nil {
			return err
		}

		if !result.HasMore || result.NextCursor == "" || result.NextCursor == cursor {
			return nil
		}
		cursor = result.NextCursor
	}
	s.logger.Warn("Bulk sync stopped at page limit",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("max_pages", s.config.MaxPages),
	)
	return nil
}

func (s *BulkSyncService) resumePoint(ctx context.Context, integrationID uuid.UUID, kind integration.SyncKind) (*time.Time, error) {
	last, err := s.batches.LatestCompleted(ctx, integrationID, kind)
	if err == nil {
		start := last.StartedAt
		return &start, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if s.config.Lookback <= 0 {
		return nil, nil
	}
	start := s.clock.Now().Add(-s.config.Lookback)
	return &start, nil
}

// RunAll syncs every kind for every active integration with a pull API.
// Failures are logged per integration and do not stop the sweep.
func (s *BulkSyncService) RunAll(ctx context.Context, kinds ...integration.SyncKind) int {
	list, err := s.integrations.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list integrations for sync", zap.Error(err))
		return 0
	}
	runs := 0
	for _, integ := range list {
		if !s.Supports(integ.Provider) {
			continue
		}
		for _, kind := range kinds {
			if _, err := s.Run(ctx, integ.ID, kind, nil); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					s.logger.Info("Sync already running, skipped",
						zap.String("integration_id", integ.ID.String()),
						zap.String("kind", string(kind)),
					)
					continue
				}
				s.logger.Error("Scheduled sync failed",
					zap.String("integration_id", integ.ID.String()),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
				continue
			}
			runs++
		}
	}
	return runs
}
