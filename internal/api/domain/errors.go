package domain

import "errors"

// Lookup errors.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrJobResultNotFound = errors.New("job result not found")
	ErrObjectNotFound    = errors.New("object not found")
)

// Validation errors, raised before any state is touched.
var (
	ErrInvalidStatus         = errors.New("unknown job status")
	ErrInvalidProgress       = errors.New("progress must be between 0 and 100")
	ErrInvalidProgressUpdate = errors.New("progress can only be set when status is running")
	ErrInvalidReasonUpdate   = errors.New("reason can only be set for rejected or failed status")
	ErrEmptyPrompt           = errors.New("prompt is required")
	ErrNoFiles               = errors.New("at least one file is required")
	ErrTooManyFiles          = errors.New("too many files")
	ErrFileTooLarge          = errors.New("file exceeds size limit")
	ErrInvalidRequest        = errors.New("invalid request")
)

// Conflict errors: the request is well formed but the job state forbids it.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobNotRunning     = errors.New("only running jobs can be completed")
	ErrAlreadyCompleted  = errors.New("job has already been completed")
	ErrJobNotCompleted   = errors.New("job is not completed yet")
	ErrAgentExists       = errors.New("agent already exists")
)

// Dependency and integrity errors.
var (
	ErrUploadFailed    = errors.New("failed to upload one or more result files")
	ErrCommitFailed    = errors.New("failed to persist job result")
	ErrPresignFailed   = errors.New("failed to generate download url")
	ErrInvalidManifest = errors.New("invalid result manifest")
	ErrStatusConflict  = errors.New("job status changed concurrently")
)
