package domain

import "errors"

var (
	// ErrAnalysisNotFound is returned when an analysis cannot be found in the database
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrAnalysisAlreadyClaimed is returned when attempting to claim an analysis that's already claimed
	ErrAnalysisAlreadyClaimed = errors.New("analysis already claimed or not in pending status")

	// ErrMissingFeatures is returned when a claimed analysis has no feature payload
	ErrMissingFeatures = errors.New("analysis has no feature payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
