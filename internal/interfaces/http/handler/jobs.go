package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/application/jobs"
)

// JobQueries is the reconcile job inspection and retry surface
type JobQueries interface {
	GetDeadLetterJobs(ctx context.Context, filter jobs.JobFilter) (*jobs.JobListResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*jobs.JobDTO, error)
	RetryDeadJob(ctx context.Context, id uuid.UUID) (*jobs.JobDTO, error)
	RetryAllDeadJobs(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*jobs.JobStatsDTO, error)
}

// JobHandler handles reconcile job management HTTP requests
type JobHandler struct {
	BaseHandler
	jobs JobQueries
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobQueries) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// RetryAllResponse represents the response for retry all operation
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// GetDeadLetterJobs handles GET /jobs/dead
func (h *JobHandler) GetDeadLetterJobs(c *gin.Context) {
	var filter jobs.JobFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.jobs.GetDeadLetterJobs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Jobs, result.Total, result.Page, result.PageSize)
}

// GetJob handles GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, job)
}

// RetryDeadJob handles POST /jobs/:id/retry
func (h *JobHandler) RetryDeadJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid job ID")
		return
	}

	job, err := h.jobs.RetryDeadJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, job)
}

// RetryAllDeadJobs handles POST /jobs/dead/retry
func (h *JobHandler) RetryAllDeadJobs(c *gin.Context) {
	count, err := h.jobs.RetryAllDeadJobs(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, RetryAllResponse{Count: count})
}

// GetStats handles GET /jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.jobs.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}
