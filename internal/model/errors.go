package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the pipeline. Callers match them with errors.Is.
var (
	ErrAlreadyRunning     = errors.New("a pipeline run is already in progress")
	ErrSourceUnavailable  = errors.New("posting source unavailable")
	ErrRateLimited        = errors.New("rate limited by upstream")
	ErrProviderError      = errors.New("analysis provider error")
	ErrMalformedResponse  = errors.New("malformed analysis response")
	ErrDuplicatePosting   = errors.New("posting already stored")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrStalledRun         = errors.New("run stalled")
	ErrInvalidPreferences = errors.New("invalid preferences")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidState       = errors.New("invalid job state")
	ErrNotFound           = errors.New("not found")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

// NewHTTPError classifies a status code: 429 unwraps to ErrRateLimited,
// everything else to ErrSourceUnavailable.
func NewHTTPError(status int, retryAfter time.Duration) *HTTPError {
	err := ErrSourceUnavailable
	if status == 429 {
		err = ErrRateLimited
	}
	return &HTTPError{StatusCode: status, RetryAfter: retryAfter, Err: err}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
