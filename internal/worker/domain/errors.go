package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobAlreadyClaimed is returned when another executor won the claim
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in pending status")

	// ErrNoOutput is returned when a runner left nothing to upload
	ErrNoOutput = errors.New("no output produced")

	// ErrJobTimeout is returned when a runner exceeded the job timeout
	ErrJobTimeout = errors.New("job timed out")

	// ErrNoUploadableFiles is returned when every output file was over the size limit
	ErrNoUploadableFiles = errors.New("all output files exceeded size limit")

	// ErrInvalidParams is returned when a job lacks parameters its runner needs
	ErrInvalidParams = errors.New("invalid job params")
)

// RetryableError wraps transient errors such as transport failures and 5xx
// responses
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

// APIError carries an error response of the job API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CommandError is returned when a runner's command exits non-zero
type CommandError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return e.Reason()
}

// Reason is the failure text reported to the API: stderr when present,
// the exit code otherwise.
func (e *CommandError) Reason() string {
	if e.Stderr != "" {
		return TruncateReason(e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
}
