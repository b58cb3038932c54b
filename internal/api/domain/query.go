package domain

import "time"

// JobFilter selects jobs for buyer-facing browsing, newest first.
type JobFilter struct {
	AgentID  string
	Status   JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the position of the last job on the previous page.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}
