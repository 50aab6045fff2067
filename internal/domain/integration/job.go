package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/returns"
)

// JobKind selects the handler for a reconcile job
type JobKind string

const (
	JobKindOrder            JobKind = "order"
	JobKindRefund           JobKind = "refund"
	JobKindReturnRequest    JobKind = "return_request"
	JobKindClaim            JobKind = "claim"
	JobKindProduct          JobKind = "product"
	JobKindShipment         JobKind = "shipment"
	JobKindPushReturnStatus JobKind = "push_return_status"
)

// IsValid returns true if the kind is known
func (k JobKind) IsValid() bool {
	switch k {
	case JobKindOrder, JobKindRefund, JobKindReturnRequest, JobKindClaim,
		JobKindProduct, JobKindShipment, JobKindPushReturnStatus:
		return true
	}
	return false
}

// JobKindForTopic maps a normalized webhook topic to the job that handles it
func JobKindForTopic(t Topic) (JobKind, bool) {
	switch t {
	case TopicOrder:
		return JobKindOrder, true
	case TopicRefund:
		return JobKindRefund, true
	case TopicReturnRequest:
		return JobKindReturnRequest, true
	case TopicClaim:
		return JobKindClaim, true
	case TopicProduct:
		return JobKindProduct, true
	case TopicShipment:
		return JobKindShipment, true
	}
	return "", false
}

// JobStatus represents the status of a reconcile job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusSkipped    JobStatus = "SKIPPED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusDead       JobStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
)

// ReconcileJob is one queued unit of reconciliation work: one webhook
// delivery, one item of a bulk sync, or one outbound status push.
type ReconcileJob struct {
	ID            uuid.UUID
	Kind          JobKind
	IntegrationID uuid.UUID
	ExternalID    string
	BatchID       *uuid.UUID
	Payload       json.RawMessage
	Status        JobStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	SkipReason    string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewReconcileJob creates a pending job
func NewReconcileJob(kind JobKind, integrationID uuid.UUID, externalID string, payload json.RawMessage, now time.Time) *ReconcileJob {
	return &ReconcileJob{
		ID:            uuid.New(),
		Kind:          kind,
		IntegrationID: integrationID,
		ExternalID:    externalID,
		Payload:       payload,
		Status:        JobStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanRetry returns true if the job can be retried
func (j *ReconcileJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkProcessing marks the job as being processed
func (j *ReconcileJob) MarkProcessing(now time.Time) error {
	if j.Status != JobStatusPending && j.Status != JobStatusFailed {
		return ErrJobInvalidState
	}
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	return nil
}

// MarkSucceeded marks the job as done
func (j *ReconcileJob) MarkSucceeded(now time.Time) {
	j.Status = JobStatusSucceeded
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkSkipped marks a non-applicable event as handled. A skip is a success.
func (j *ReconcileJob) MarkSkipped(reason string, now time.Time) {
	j.Status = JobStatusSkipped
	j.SkipReason = reason
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkFailed records the error and schedules the next attempt with exponential backoff
func (j *ReconcileJob) MarkFailed(errMsg string, now time.Time) {
	j.RetryCount++
	j.LastError = errMsg
	j.UpdatedAt = now

	if j.RetryCount >= j.MaxRetries {
		j.Status = JobStatusDead
		j.NextRetryAt = nil
		return
	}
	j.Status = JobStatusFailed
	// Exponential backoff: 1s, 2s, 4s, 8s, 16s, ...
	backoff := DefaultBaseBackoff * time.Duration(1<<uint(j.RetryCount-1))
	next := now.Add(backoff)
	j.NextRetryAt = &next
}

// MarkDead fails the job permanently without further retries
func (j *ReconcileJob) MarkDead(errMsg string, now time.Time) {
	j.Status = JobStatusDead
	j.LastError = errMsg
	j.NextRetryAt = nil
	j.UpdatedAt = now
}

// ResetForRetry resets a dead job for another round of attempts
func (j *ReconcileJob) ResetForRetry(now time.Time) error {
	if j.Status != JobStatusDead {
		return ErrJobNotRetryable
	}
	j.Status = JobStatusPending
	j.RetryCount = 0
	j.LastError = ""
	j.NextRetryAt = nil
	j.UpdatedAt = now
	return nil
}

// IsDead returns true if the job is in dead letter status
func (j *ReconcileJob) IsDead() bool {
	return j.Status == JobStatusDead
}

// IsFinished returns true once the job needs no further work
func (j *ReconcileJob) IsFinished() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusSkipped
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	// Save persists one or more new jobs
	Save(ctx context.Context, jobs ...*ReconcileJob) error
	// FindByID retrieves a single job
	FindByID(ctx context.Context, id uuid.UUID) (*ReconcileJob, error)
	// ClaimDue atomically claims pending jobs and failed jobs due for retry,
	// marks them processing and returns them
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*ReconcileJob, error)
	// Update updates an existing job
	Update(ctx context.Context, job *ReconcileJob) error
	// FindDead retrieves dead letter jobs with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*ReconcileJob, int64, error)
	// ReleaseStale returns jobs stuck in processing since before the cutoff to pending
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	// DeleteFinishedBefore deletes succeeded and skipped jobs older than the cutoff
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of jobs for each status
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
}

// ReturnPushPayload is the payload of a push_return_status job
type ReturnPushPayload struct {
	ReturnID uuid.UUID      `json:"return_id"`
	Status   returns.Status `json:"status"`
	Reason   string         `json:"reason,omitempty"`
}

// JobHandler processes one claimed job. A non-empty skip reason with a nil
// error marks the job as skipped.
type JobHandler interface {
	Handle(ctx context.Context, job *ReconcileJob) (skipReason string, err error)
}
