package domain

import "time"

// Job event types published on every committed mutation.
const (
	EventJobCreated       = "job.created"
	EventJobStatusChanged = "job.status_changed"
	EventJobCompleted     = "job.completed"
)

// JobEvent is the message body published for job lifecycle changes.
type JobEvent struct {
	Event      string    `json:"event"`
	JobID      string    `json:"job_id"`
	AgentID    string    `json:"agent_id"`
	Status     JobStatus `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
