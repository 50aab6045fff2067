package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when a webhook signature or API key is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeActorRequired is used when a lifecycle action arrives without an acting user
	ErrCodeActorRequired = "ERR_ACTOR_REQUIRED"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeIntegrationNotFound is used when a delivery cannot be attributed to one integration
	ErrCodeIntegrationNotFound = "ERR_INTEGRATION_NOT_FOUND"
	// ErrCodeJobNotFound is used when a reconcile job does not exist
	ErrCodeJobNotFound = "ERR_JOB_NOT_FOUND"
	// ErrCodeLabelNotFound is used when a return has no stored label
	ErrCodeLabelNotFound = "ERR_LABEL_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeSyncInProgress is used when a bulk sync already holds the lock
	ErrCodeSyncInProgress = "ERR_SYNC_IN_PROGRESS"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInvalidTransition is used when a lifecycle action is not valid from the current status
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	// ErrCodeNotRetryable is used when a job is retried outside the dead letter state
	ErrCodeNotRetryable = "ERR_NOT_RETRYABLE"
	// ErrCodeIntegrationInactive is used when an operation targets a disabled integration
	ErrCodeIntegrationInactive = "ERR_INTEGRATION_INACTIVE"
	// ErrCodeSyncUnsupported is used when the platform has no bulk pull
	ErrCodeSyncUnsupported = "ERR_SYNC_UNSUPPORTED"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeValidation is used when request binding fails
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeUnsupportedTopic is used for webhook topics that have no route
	ErrCodeUnsupportedTopic = "ERR_UNSUPPORTED_TOPIC"
)

// Throttling error codes
const (
	// ErrCodeRateLimited is used when a client exceeds its request budget
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Upstream error codes
const (
	// ErrCodeUpstream is used when a channel or carrier API call fails
	ErrCodeUpstream = "ERR_UPSTREAM"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Auth errors
	ErrCodeUnauthorized:  http.StatusUnauthorized,
	ErrCodeActorRequired: http.StatusUnprocessableEntity,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeIntegrationNotFound: http.StatusNotFound,
	ErrCodeJobNotFound:         http.StatusNotFound,
	ErrCodeLabelNotFound:       http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeSyncInProgress:      http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeInvalidTransition:   http.StatusUnprocessableEntity,
	ErrCodeNotRetryable:        http.StatusUnprocessableEntity,
	ErrCodeIntegrationInactive: http.StatusUnprocessableEntity,
	ErrCodeSyncUnsupported:     http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeUnsupportedTopic: http.StatusBadRequest,

	// Throttling errors
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Upstream errors
	ErrCodeUpstream: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":          ErrCodeNotFound,
	"ITEM_NOT_FOUND":     ErrCodeNotFound,
	"JOB_NOT_FOUND":      ErrCodeJobNotFound,
	"ALREADY_EXISTS":     ErrCodeAlreadyExists,
	"ALREADY_MAPPED":     ErrCodeConflict,
	"INVALID_INPUT":      ErrCodeInvalidInput,
	"INVALID_STATE":      ErrCodeInvalidState,
	"INVALID_STATUS":     ErrCodeNotRetryable,
	"INVALID_TRANSITION": ErrCodeInvalidTransition,
	"ACTOR_REQUIRED":     ErrCodeActorRequired,
	"INTERNAL_ERROR":     ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes with no explicit mapping are precondition violations and become ERR_BUSINESS_RULE.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeBusinessRule
}
