package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

// JobService handles dead letter inspection and manual retries
type JobService struct {
	repo   integration.JobRepository
	clock  shared.Clock
	logger *zap.Logger
}

// NewJobService creates a new job service
func NewJobService(repo integration.JobRepository, clock shared.Clock, logger *zap.Logger) *JobService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{repo: repo, clock: clock, logger: logger}
}

// JobDTO represents a reconcile job data transfer object
type JobDTO struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	IntegrationID uuid.UUID  `json:"integration_id"`
	ExternalID    string     `json:"external_id,omitempty"`
	BatchID       *uuid.UUID `json:"batch_id,omitempty"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	SkipReason    string     `json:"skip_reason,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobFilter represents the paging of dead letter queries
type JobFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// JobListResult represents a paginated job list
type JobListResult struct {
	Jobs       []JobDTO `json:"jobs"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// JobStatsDTO represents queue statistics
type JobStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Succeeded  int64 `json:"succeeded"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

var errJobNotFound = shared.NewDomainError("JOB_NOT_FOUND", "Job not found")

// GetDeadLetterJobs retrieves dead letter jobs with pagination
func (s *JobService) GetDeadLetterJobs(ctx context.Context, filter JobFilter) (*JobListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	list, total, err := s.repo.FindDead(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter jobs", zap.Error(err))
		return nil, err
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	dtos := make([]JobDTO, len(list))
	for i, job := range list {
		dtos[i] = toJobDTO(job)
	}
	return &JobListResult{
		Jobs:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// GetJob retrieves a single job by ID
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*JobDTO, error) {
	job, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, integration.ErrJobNotFound) {
		return nil, errJobNotFound
	}
	if err != nil {
		return nil, err
	}
	dto := toJobDTO(job)
	return &dto, nil
}

// RetryDeadJob resets a dead letter job for another round of attempts
func (s *JobService) RetryDeadJob(ctx context.Context, id uuid.UUID) (*JobDTO, error) {
	job, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, integration.ErrJobNotFound) {
		return nil, errJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := job.ResetForRetry(s.clock.Now()); err != nil {
		return nil, shared.NewDomainError("INVALID_STATUS", err.Error())
	}
	if err := s.repo.Update(ctx, job); err != nil {
		s.logger.Error("Failed to update job", zap.Error(err), zap.String("id", id.String()))
		return nil, err
	}

	s.logger.Info("Dead letter job reset for retry",
		zap.String("id", id.String()),
		zap.String("kind", string(job.Kind)),
	)
	dto := toJobDTO(job)
	return &dto, nil
}

// RetryAllDeadJobs resets every dead letter job for retry
func (s *JobService) RetryAllDeadJobs(ctx context.Context) (int64, error) {
	var count int64
	pageSize := 100

	// Reset jobs leave the dead set, so the first page is re-read until empty
	for {
		list, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			s.logger.Error("Failed to find dead letter jobs", zap.Error(err))
			return count, err
		}
		if len(list) == 0 {
			break
		}

		progressed := false
		for _, job := range list {
			if err := job.ResetForRetry(s.clock.Now()); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, job); err != nil {
				s.logger.Error("Failed to update job", zap.Error(err), zap.String("id", job.ID.String()))
				continue
			}
			progressed = true
			count++
		}
		if !progressed || len(list) < pageSize {
			break
		}
	}

	s.logger.Info("Retried dead letter jobs", zap.Int64("count", count))
	return count, nil
}

// GetStats returns queue statistics
func (s *JobService) GetStats(ctx context.Context) (*JobStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get job stats", zap.Error(err))
		return nil, err
	}

	var total int64
	for _, count := range counts {
		total += count
	}
	return &JobStatsDTO{
		Pending:    counts[integration.JobStatusPending],
		Processing: counts[integration.JobStatusProcessing],
		Succeeded:  counts[integration.JobStatusSucceeded],
		Skipped:    counts[integration.JobStatusSkipped],
		Failed:     counts[integration.JobStatusFailed],
		Dead:       counts[integration.JobStatusDead],
		Total:      total,
	}, nil
}

func toJobDTO(job *integration.ReconcileJob) JobDTO {
	return JobDTO{
		ID:            job.ID,
		Kind:          string(job.Kind),
		IntegrationID: job.IntegrationID,
		ExternalID:    job.ExternalID,
		BatchID:       job.BatchID,
		Status:        string(job.Status),
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		LastError:     job.LastError,
		SkipReason:    job.SkipReason,
		NextRetryAt:   job.NextRetryAt,
		ProcessedAt:   job.ProcessedAt,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}
