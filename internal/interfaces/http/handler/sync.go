package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/integration"
)

// SyncRunner starts a bulk sync for one integration
type SyncRunner interface {
	Run(ctx context.Context, integrationID uuid.UUID, kind integration.SyncKind, since *time.Time) (*integration.SyncBatch, error)
}

// SyncHandler triggers bulk syncs on demand
type SyncHandler struct {
	BaseHandler
	runner SyncRunner
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// TriggerSyncRequest is the body of POST /integrations/:id/sync.
// Without since the run resumes from the last completed batch.
type TriggerSyncRequest struct {
	Kind  string     `json:"kind" binding:"required,oneof=orders returns products"`
	Since *time.Time `json:"since"`
}

// SyncBatchResponse describes one bulk sync run
type SyncBatchResponse struct {
	ID            uuid.UUID  `json:"id"`
	IntegrationID uuid.UUID  `json:"integration_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Since         *time.Time `json:"since,omitempty"`
	Pages         int        `json:"pages"`
	ItemsEnqueued int        `json:"items_enqueued"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Trigger handles POST /integrations/:id/sync. Pulled items are enqueued as
// jobs; the response reports the batch, not the reconciliation outcome.
func (h *SyncHandler) Trigger(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid integration ID")
		return
	}
	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	batch, err := h.runner.Run(c.Request.Context(), id, integration.SyncKind(req.Kind), req.Since)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, toSyncBatchResponse(batch))
}

func toSyncBatchResponse(b *integration.SyncBatch) SyncBatchResponse {
	return SyncBatchResponse{
		ID:            b.ID,
		IntegrationID: b.IntegrationID,
		Kind:          string(b.Kind),
		Status:        string(b.Status),
		Since:         b.Since,
		Pages:         b.Pages,
		ItemsEnqueued: b.ItemsEnqueued,
		Error:         b.Error,
		StartedAt:     b.StartedAt,
		FinishedAt:    b.FinishedAt,
	}
}
