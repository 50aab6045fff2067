package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncKind selects what a bulk sync pulls
type SyncKind string

const (
	SyncKindOrders   SyncKind = "orders"
	SyncKindReturns  SyncKind = "returns"
	SyncKindProducts SyncKind = "products"
)

// IsValid returns true if the kind is known
func (k SyncKind) IsValid() bool {
	return k == SyncKindOrders || k == SyncKindReturns || k == SyncKindProducts
}

// BatchStatus is the state of a bulk sync run
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "RUNNING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// SyncBatch groups the per-item jobs of one bulk sync run
type SyncBatch struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	Kind          SyncKind
	Status        BatchStatus
	Since         *time.Time
	Pages         int
	ItemsEnqueued int
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// NewSyncBatch starts a batch
func NewSyncBatch(integrationID uuid.UUID, kind SyncKind, since *time.Time, now time.Time) *SyncBatch {
	return &SyncBatch{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		Kind:          kind,
		Status:        BatchStatusRunning,
		Since:         since,
		StartedAt:     now,
	}
}

// RecordPage counts a fetched page and its enqueued items
func (b *SyncBatch) RecordPage(items int) {
	b.Pages++
	b.ItemsEnqueued += items
}

// Complete finishes the batch successfully
func (b *SyncBatch) Complete(now time.Time) {
	b.Status = BatchStatusCompleted
	b.FinishedAt = &now
}

// Fail finishes the batch with an error. Jobs already enqueued still run.
func (b *SyncBatch) Fail(errMsg string, now time.Time) {
	b.Status = BatchStatusFailed
	b.Error = errMsg
	b.FinishedAt = &now
}

// SyncBatchRepository defines the interface for batch persistence
type SyncBatchRepository interface {
	Save(ctx context.Context, b *SyncBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncBatch, error)
	// LatestCompleted returns the most recent completed batch for an integration and kind
	LatestCompleted(ctx context.Context, integrationID uuid.UUID, kind SyncKind) (*SyncBatch, error)
}
