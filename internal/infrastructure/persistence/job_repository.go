package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// GormJobRepository implements JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GORM-based job repository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormJobRepository) WithTx(tx *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: tx}
}

// Save persists one or more new jobs
func (r *GormJobRepository) Save(ctx context.Context, jobs ...*integration.ReconcileJob) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]*models.ReconcileJobModel, len(jobs))
	for i, j := range jobs {
		rows[i] = models.ReconcileJobModelFromDomain(j)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindByID retrieves a single job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.ReconcileJob, error) {
	var model models.ReconcileJobModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ClaimDue atomically claims pending jobs and failed jobs whose retry time
// has passed, oldest first, and marks them processing
func (r *GormJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*integration.ReconcileJob, error) {
	var rows []models.ReconcileJobModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock and fetch jobs using FOR UPDATE SKIP LOCKED
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("status = ? OR (status = ? AND next_retry_at <= ?)",
				integration.JobStatusPending, integration.JobStatusFailed, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}

		if err := tx.Model(&models.ReconcileJobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     integration.JobStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range rows {
			rows[i].Status = integration.JobStatusProcessing
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*integration.ReconcileJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

// Update updates an existing job
func (r *GormJobRepository) Update(ctx context.Context, job *integration.ReconcileJob) error {
	return r.db.WithContext(ctx).Save(models.ReconcileJobModelFromDomain(job)).Error
}

// FindDead retrieves dead letter jobs with pagination
func (r *GormJobRepository) FindDead(ctx context.Context, page, pageSize int) ([]*integration.ReconcileJob, int64, error) {
	var rows []models.ReconcileJobModel
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&models.ReconcileJobModel{}).
		Where("status = ?", integration.JobStatusDead).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.JobStatusDead).
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*integration.ReconcileJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, total, nil
}

// ReleaseStale returns jobs stuck in processing since before the cutoff to pending.
// A worker that crashed mid-job leaves its claim behind.
func (r *GormJobRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReconcileJobModel{}).
		Where("status = ? AND updated_at < ?", integration.JobStatusProcessing, before).
		Updates(map[string]interface{}{
			"status":     integration.JobStatusPending,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// DeleteFinishedBefore deletes succeeded and skipped jobs processed before the cutoff
func (r *GormJobRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND processed_at < ?",
			[]integration.JobStatus{integration.JobStatusSucceeded, integration.JobStatusSkipped}, before).
		Delete(&models.ReconcileJobModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns count of jobs for each status
func (r *GormJobRepository) CountByStatus(ctx context.Context) (map[integration.JobStatus]int64, error) {
	type statusCount struct {
		Status integration.JobStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.ReconcileJobModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[integration.JobStatus]int64)
	for _, c := range results {
		counts[c.Status] = c.Count
	}
	return counts, nil
}

// GormSyncBatchRepository implements SyncBatchRepository using GORM
type GormSyncBatchRepository struct {
	db *gorm.DB
}

// NewGormSyncBatchRepository creates a new GormSyncBatchRepository
func NewGormSyncBatchRepository(db *gorm.DB) *GormSyncBatchRepository {
	return &GormSyncBatchRepository{db: db}
}

// Save creates or updates a batch
func (r *GormSyncBatchRepository) Save(ctx context.Context, b *integration.SyncBatch) error {
	return r.db.WithContext(ctx).Save(models.SyncBatchModelFromDomain(b)).Error
}

// FindByID finds a batch by ID
func (r *GormSyncBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncBatch, error) {
	var model models.SyncBatchModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// LatestCompleted returns the most recent completed batch for an integration and kind
func (r *GormSyncBatchRepository) LatestCompleted(ctx context.Context, integrationID uuid.UUID, kind integration.SyncKind) (*integration.SyncBatch, error) {
	var model models.SyncBatchModel
	if err := r.db.WithContext(ctx).
		Where("integration_id = ? AND kind = ? AND status = ?", integrationID, kind, integration.BatchStatusCompleted).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure the repositories implement their domain interfaces
var (
	_ integration.JobRepository       = (*GormJobRepository)(nil)
	_ integration.SyncBatchRepository = (*GormSyncBatchRepository)(nil)
)
