package domain

import "errors"

var (
	// ErrConnectionNotFound is returned when a connection id does not exist
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrMissingURL is returned when a connection has neither url nor Endpoint
	ErrMissingURL = errors.New("connection has no url or endpoint")

	// ErrMissingClientID is returned when a mapping cannot be given a ClientId
	ErrMissingClientID = errors.New("mapping requires a client id")

	// ErrInvalidMapping is returned when a field mapping fails validation
	ErrInvalidMapping = errors.New("invalid field mapping")

	// ErrCacheMiss is returned when no cached API response exists for a connection
	ErrCacheMiss = errors.New("no cached api response for connection")

	// ErrConnectionLocked is returned when an import or remap already holds the connection
	ErrConnectionLocked = errors.New("connection is locked by another import or remap")

	// ErrImportRunNotFound is returned when an import run cannot be found
	ErrImportRunNotFound = errors.New("import run not found")

	// ErrImportRunAlreadyClaimed is returned when a run is not PENDING anymore
	ErrImportRunAlreadyClaimed = errors.New("import run already claimed or not in PENDING status")

	// ErrMaxRetriesExceeded is returned when a run has exceeded its retry limit
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
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

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
