package reconcile

import (
	"context"
	"errors"

	"github.com/omnisync/backend/internal/domain/integration"
)

// ErrMalformedPayload is returned when a channel payload cannot be normalized
var ErrMalformedPayload = errors.New("reconcile: malformed channel payload")

// IsIntegrityError reports a data-integrity conflict. These are programming or
// data errors and must fail the job loudly instead of being retried.
func IsIntegrityError(err error) bool {
	return errors.Is(err, integration.ErrMappingConflict)
}

// IsPermanent reports errors that no retry can fix
func IsPermanent(err error) bool {
	return IsIntegrityError(err) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, integration.ErrUnsupportedTopic) ||
		errors.Is(err, integration.ErrIntegrationNotFound)
}

// IsTransient reports downstream failures worth retrying with backoff
func IsTransient(err error) bool {
	return errors.Is(err, integration.ErrPlatformUnavailable) ||
		errors.Is(err, integration.ErrPlatformRateLimited) ||
		errors.Is(err, integration.ErrPlatformRequestFailed) ||
		errors.Is(err, context.DeadlineExceeded)
}
