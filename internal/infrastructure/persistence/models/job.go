package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/integration"
)

// ReconcileJobModel is the persistence model for queued reconciliation work.
// Claiming uses FOR UPDATE SKIP LOCKED on the status/next_retry_at index.
type ReconcileJobModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;primaryKey"`
	Kind          integration.JobKind   `gorm:"type:varchar(30);not null"`
	IntegrationID uuid.UUID             `gorm:"type:uuid;not null;index"`
	ExternalID    string                `gorm:"type:varchar(255);index"`
	BatchID       *uuid.UUID            `gorm:"type:uuid;index"`
	Payload       datatypes.JSON        `gorm:"type:jsonb"`
	Status        integration.JobStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_reconcile_jobs_status_created,priority:1"`
	RetryCount    int                   `gorm:"not null;default:0"`
	MaxRetries    int                   `gorm:"not null;default:5"`
	LastError     string                `gorm:"type:text"`
	SkipReason    string                `gorm:"type:varchar(50)"`
	NextRetryAt   *time.Time            `gorm:"index:idx_reconcile_jobs_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_reconcile_jobs_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconcileJobModel) TableName() string {
	return "reconcile_jobs"
}

// ToDomain converts the persistence model to a domain ReconcileJob
func (m *ReconcileJobModel) ToDomain() *integration.ReconcileJob {
	return &integration.ReconcileJob{
		ID:            m.ID,
		Kind:          m.Kind,
		IntegrationID: m.IntegrationID,
		ExternalID:    m.ExternalID,
		BatchID:       m.BatchID,
		Payload:       json.RawMessage(m.Payload),
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		SkipReason:    m.SkipReason,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ReconcileJob
func (m *ReconcileJobModel) FromDomain(j *integration.ReconcileJob) {
	m.ID = j.ID
	m.Kind = j.Kind
	m.IntegrationID = j.IntegrationID
	m.ExternalID = j.ExternalID
	m.BatchID = j.BatchID
	m.Payload = datatypes.JSON(j.Payload)
	m.Status = j.Status
	m.RetryCount = j.RetryCount
	m.MaxRetries = j.MaxRetries
	m.LastError = j.LastError
	m.SkipReason = j.SkipReason
	m.NextRetryAt = j.NextRetryAt
	m.ProcessedAt = j.ProcessedAt
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
}

// ReconcileJobModelFromDomain creates a new persistence model from a domain ReconcileJob
func ReconcileJobModelFromDomain(j *integration.ReconcileJob) *ReconcileJobModel {
	m := &ReconcileJobModel{}
	m.FromDomain(j)
	return m
}

// SyncBatchModel is the persistence model for a bulk sync run
type SyncBatchModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primaryKey"`
	IntegrationID uuid.UUID               `gorm:"type:uuid;not null;index:idx_sync_batches_lookup,priority:1"`
	Kind          integration.SyncKind    `gorm:"type:varchar(20);not null;index:idx_sync_batches_lookup,priority:2"`
	Status        integration.BatchStatus `gorm:"type:varchar(20);not null;index:idx_sync_batches_lookup,priority:3"`
	Since         *time.Time
	Pages         int       `gorm:"not null;default:0"`
	ItemsEnqueued int       `gorm:"not null;default:0"`
	Error         string    `gorm:"type:text"`
	StartedAt     time.Time `gorm:"not null;index:idx_sync_batches_lookup,priority:4"`
	FinishedAt    *time.Time
}

// TableName returns the table name for GORM
func (SyncBatchModel) TableName() string {
	return "sync_batches"
}

// ToDomain converts the persistence model to a domain SyncBatch
func (m *SyncBatchModel) ToDomain() *integration.SyncBatch {
	return &integration.SyncBatch{
		ID:            m.ID,
		IntegrationID: m.IntegrationID,
		Kind:          m.Kind,
		Status:        m.Status,
		Since:         m.Since,
		Pages:         m.Pages,
		ItemsEnqueued: m.ItemsEnqueued,
		Error:         m.Error,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
	}
}

// SyncBatchModelFromDomain creates a new persistence model from a domain SyncBatch
func SyncBatchModelFromDomain(b *integration.SyncBatch) *SyncBatchModel {
	return &SyncBatchModel{
		ID:            b.ID,
		IntegrationID: b.IntegrationID,
		Kind:          b.Kind,
		Status:        b.Status,
		Since:         b.Since,
		Pages:         b.Pages,
		ItemsEnqueued: b.ItemsEnqueued,
		Error:         b.Error,
		StartedAt:     b.StartedAt,
		FinishedAt:    b.FinishedAt,
	}
}
