package domain

// Job status values as reported to the job API
const (
	JobStatusPending   = "pending"
	JobStatusAccepted  = "accepted"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const (
	// RunningProgress is reported once the work directory is ready.
	RunningProgress = 10

	// MaxReasonLength matches the server's decision reason column.
	MaxReasonLength = 500

	// MaxUploadFiles and MaxUploadFileSize mirror the server completion limits.
	MaxUploadFiles          = 20
	MaxUploadFileSize int64 = 50 * 1024 * 1024

	// EventJobCreated is the routing key of new job announcements.
	EventJobCreated = "job.created"
)

// TruncateReason cuts reason to MaxReasonLength runes.
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= MaxReasonLength {
		return reason
	}
	return string(runes[:MaxReasonLength])
}
