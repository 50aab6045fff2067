package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
)

// SyncRunner runs a bulk sync sweep over every active integration and
// returns the number of runs that completed
type SyncRunner interface {
	RunAll(ctx context.Context, kinds ...integration.SyncKind) int
}

// SyncSchedulerConfig holds configuration for the periodic bulk sync
type SyncSchedulerConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// RunOnStart triggers one sweep as soon as the scheduler starts
	RunOnStart bool
	// SweepTimeout bounds a single sweep
	SweepTimeout time.Duration
	Kinds        []integration.SyncKind
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Interval:     30 * time.Minute,
		SweepTimeout: 25 * time.Minute,
		Kinds: []integration.SyncKind{
			integration.SyncKindOrders,
			integration.SyncKindReturns,
			integration.SyncKindProducts,
		},
	}
}

// Validate checks the configuration
func (c SyncSchedulerConfig) Validate() error {
	if c.Interval <= 0 || c.SweepTimeout <= 0 || len(c.Kinds) == 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SyncScheduler periodically pulls every active channel integration so
// missed webhooks are eventually reconciled
type SyncScheduler struct {
	config SyncSchedulerConfig
	runner SyncRunner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  atomic.Bool
	lastRunAt atomic.Pointer[time.Time]
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, runner SyncRunner, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config: config,
		runner: runner,
		logger: logger.With(zap.String("component", "sync_scheduler")),
	}, nil
}

// Start starts the scheduler loop
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop stops the scheduler, waiting for an in-flight sweep up to ctx's deadline
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRunAt returns when the last sweep finished, nil before the first one
func (s *SyncScheduler) LastRunAt() *time.Time {
	return s.lastRunAt.Load()
}

// TriggerNow runs one sweep synchronously
func (s *SyncScheduler) TriggerNow(ctx context.Context) (int, error) {
	if !s.IsRunning() {
		return 0, ErrSchedulerNotRunning
	}
	runs, ok := s.sweep(ctx)
	if !ok {
		return 0, ErrSweepInProgress
	}
	return runs, nil
}

func (s *SyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.sweep(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one pass; it returns false when another sweep is active
func (s *SyncScheduler) sweep(ctx context.Context) (int, bool) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Debug("Previous sync sweep still running, skipped")
		return 0, false
	}
	defer s.sweeping.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	started := time.Now()
	runs := s.runner.RunAll(ctx, s.config.Kinds...)
	finished := time.Now()
	s.lastRunAt.Store(&finished)

	s.logger.Info("Sync sweep finished",
		zap.Int("runs", runs),
		zap.Duration("duration", finished.Sub(started)),
	)
	return runs, true
}
