package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when an operation is inconsistent with
	// the job's current status, e.g. completing a job the caller does not own
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")
)

// RetryableError marks a handler failure as transient (network, upstream
// 5xx). The worker recycles the job for another attempt while attempts
// remain; an unwrapped handler error dead-letters immediately.
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
