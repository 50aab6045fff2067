package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/telemetry"
)

// Outcome labels on the job metrics
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
)

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	Workers          int
	BatchSize        int
	PollInterval     time.Duration
	StaleAfter       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// Meter receives job counters and durations; nil records nothing
	Meter metric.Meter
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Workers:          4,
		BatchSize:        50,
		PollInterval:     2 * time.Second,
		StaleAfter:       10 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Processor claims due reconcile jobs and runs them through a handler
type Processor struct {
	repo     integration.JobRepository
	receipts integration.WebhookReceiptRepository
	handler  integration.JobHandler
	clock    shared.Clock
	config   ProcessorConfig
	logger   *zap.Logger
	metrics  *processorMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor creates a new job processor. receipts may be nil.
func NewProcessor(
	repo integration.JobRepository,
	receipts integration.WebhookReceiptRepository,
	handler integration.JobHandler,
	clock shared.Clock,
	config ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	defaults := DefaultProcessorConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics, err := newProcessorMetrics(config.Meter)
	if err != nil {
		logger.Warn("job metrics disabled", zap.Error(err))
		metrics, _ = newProcessorMetrics(nil)
	}
	return &Processor{
		repo:     repo,
		receipts: receipts,
		handler:  handler,
		clock:    clock,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

type processorMetrics struct {
	jobs     *telemetry.Counter
	duration *telemetry.Histogram
}

func newProcessorMetrics(meter metric.Meter) (*processorMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("jobs")
	}
	jobs, err := telemetry.NewCounter(meter,
		"reconcile_jobs_total",
		"Reconcile jobs processed by kind and outcome",
		"{job}",
	)
	if err != nil {
		return nil, err
	}
	duration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "reconcile_job_duration_seconds",
		Description: "Time spent decoding and reconciling one job",
		Unit:        "s",
		Boundaries:  telemetry.ReconcileDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &processorMetrics{jobs: jobs, duration: duration}, nil
}

func (m *processorMetrics) record(ctx context.Context, kind integration.JobKind, outcome string, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		telemetry.AttrJobKind.String(string(kind)),
		telemetry.AttrJobOutcome.String(outcome),
	}
	m.jobs.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, elapsed, attrs...)
}

// Start starts the background processing
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("job processor started",
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("job processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while full batches keep coming
			for p.RunOnce(ctx) == p.config.BatchSize && ctx.Err() == nil {
			}
		}
	}
}

// RunOnce claims one batch of due jobs, processes it and returns how many
// jobs were claimed
func (p *Processor) RunOnce(ctx context.Context) int {
	claimed, err := p.repo.ClaimDue(ctx, p.clock.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to claim jobs", zap.Error(err))
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	sem := make(chan struct{}, p.config.Workers)
	var wg sync.WaitGroup
	for _, job := range claimed {
		sem <- struct{}{}
		wg.Add(1)
		go func(job *integration.ReconcileJob) {
			defer wg.Done()
			defer func() { <-sem }()
			p.processJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return len(claimed)
}

// processJob runs one job and records its outcome
func (p *Processor) processJob(ctx context.Context, job *integration.ReconcileJob) {
	started := time.Now()
	skipReason, err := p.handle(ctx, job)
	elapsed := time.Since(started)
	now := p.clock.Now()
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("integration_id", job.IntegrationID.String()),
		zap.String("external_id", job.ExternalID),
	}

	switch {
	case err == nil && skipReason != "":
		job.MarkSkipped(skipReason, now)
		p.metrics.record(ctx, job.Kind, OutcomeSkipped, elapsed)
		p.logger.Info("job skipped", append(fields, zap.String("skip_reason", skipReason))...)
	case err == nil:
		job.MarkSucceeded(now)
		p.metrics.record(ctx, job.Kind, OutcomeSucceeded, elapsed)
		p.logger.Debug("job processed successfully", fields...)
	case reconcile.IsPermanent(err):
		job.MarkDead(err.Error(), now)
		p.metrics.record(ctx, job.Kind, OutcomeDead, elapsed)
		p.logger.Error("job failed permanently", append(fields, zap.Error(err))...)
	default:
		job.MarkFailed(err.Error(), now)
		if job.IsDead() {
			p.metrics.record(ctx, job.Kind, OutcomeDead, elapsed)
			p.logger.Warn("job moved to dead letter queue",
				append(fields,
					zap.Int("retry_count", job.RetryCount),
					zap.String("last_error", job.LastError),
				)...,
			)
		} else {
			p.metrics.record(ctx, job.Kind, OutcomeRetried, elapsed)
			p.logger.Warn("job failed, will retry",
				append(fields,
					zap.Int("retry_count", job.RetryCount),
					zap.Timep("next_retry_at", job.NextRetryAt),
					zap.Error(err),
				)...,
			)
		}
	}

	if err := p.repo.Update(context.WithoutCancel(ctx), job); err != nil {
		p.logger.Error("failed to update job", append(fields, zap.Error(err))...)
	}
}

// handle runs the handler and turns a panic into an error
func (p *Processor) handle(ctx context.Context, job *integration.ReconcileJob) (skipReason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}

func (p *Processor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup releases stuck jobs and removes old finished jobs and receipts
func (p *Processor) Cleanup(ctx context.Context) {
	now := p.clock.Now()
	if p.config.StaleAfter > 0 {
		released, err := p.repo.ReleaseStale(ctx, now.Add(-p.config.StaleAfter))
		if err != nil {
			p.logger.Error("failed to release stale jobs", zap.Error(err))
		} else if released > 0 {
			p.logger.Warn("released stale jobs", zap.Int64("released", released))
		}
	}
	if p.config.CleanupRetention <= 0 {
		return
	}

	cutoff := now.Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup finished jobs", zap.Error(err))
	} else if deleted > 0 {
		p.logger.Info("cleaned up finished jobs",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	if p.receipts == nil {
		return
	}
	if deleted, err := p.receipts.DeleteOlderThan(ctx, cutoff); err != nil {
		p.logger.Error("failed to cleanup webhook receipts", zap.Error(err))
	} else if deleted > 0 {
		p.logger.Info("cleaned up webhook receipts", zap.Int64("deleted", deleted))
	}
}
