package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/bulksync"
	"github.com/omnisync/backend/internal/application/ingest"
	appreturns "github.com/omnisync/backend/internal/application/returns"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/logger"
	"github.com/omnisync/backend/internal/interfaces/http/dto"
	"github.com/omnisync/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// getActor reads the acting staff user from X-Actor-ID. Missing or malformed
// ids yield an empty actor, which lifecycle actions reject.
func getActor(c *gin.Context) returns.Actor {
	raw := c.GetHeader(middleware.ActorHeader)
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ""
	}
	return returns.StaffActor(id)
}

// parseID parses a uuid path parameter
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted sends a 202 response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 response for a request that failed binding
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
}

// sentinelCodes maps package sentinel errors onto API error codes
var sentinelCodes = []struct {
	err     error
	code    string
	message string
}{
	{integration.ErrIntegrationNotFound, dto.ErrCodeIntegrationNotFound, "Integration not found"},
	{integration.ErrIntegrationAmbiguous, dto.ErrCodeIntegrationNotFound, "More than one integration matches; pass integration_id"},
	{integration.ErrIntegrationInactive, dto.ErrCodeIntegrationInactive, "Integration is not active"},
	{integration.ErrInvalidSignature, dto.ErrCodeUnauthorized, "Invalid webhook signature"},
	{integration.ErrInvalidPlatformCode, dto.ErrCodeBadRequest, "Unknown platform"},
	{integration.ErrUnsupportedTopic, dto.ErrCodeUnsupportedTopic, "Unsupported webhook topic"},
	{integration.ErrJobNotFound, dto.ErrCodeJobNotFound, "Job not found"},
	{integration.ErrJobNotRetryable, dto.ErrCodeNotRetryable, "Only dead jobs can be retried"},
	{appreturns.ErrLabelNotFound, dto.ErrCodeLabelNotFound, "No label stored for this return"},
	{bulksync.ErrSyncInProgress, dto.ErrCodeSyncInProgress, "A sync is already running for this integration"},
	{bulksync.ErrSyncUnsupported, dto.ErrCodeSyncUnsupported, "This platform does not support bulk sync"},
	{bulksync.ErrInvalidSyncKind, dto.ErrCodeInvalidInput, "Invalid sync kind"},
	{ingest.ErrInvalidDelivery, dto.ErrCodeBadRequest, "Invalid webhook delivery"},
	{integration.ErrPlatformAuthFailed, dto.ErrCodeUpstream, "Channel rejected the stored credentials"},
	{integration.ErrPlatformRateLimited, dto.ErrCodeUpstream, "Channel rate limit reached, try again later"},
	{integration.ErrPlatformUnavailable, dto.ErrCodeUpstream, "Channel is temporarily unavailable"},
	{integration.ErrPlatformRequestFailed, dto.ErrCodeUpstream, "Channel request failed"},
}

// HandleError maps domain and package errors to HTTP responses. Anything
// unrecognised is logged and answered with a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			c.JSON(dto.GetHTTPStatus(s.code), dto.NewErrorResponseWithRequestID(s.code, s.message, requestID))
			return
		}
	}

	logger.L(c.Request.Context()).Error("Unhandled request error", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
