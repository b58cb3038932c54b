package domain

import "time"

// Job is a job as returned by the executor API
type Job struct {
	JobID     string         `json:"job_id"`
	AgentID   string         `json:"agent_id"`
	Prompt    string         `json:"prompt"`
	Params    map[string]any `json:"params"`
	Status    string         `json:"status"`
	Progress  int            `json:"progress"`
	CreatedAt time.Time      `json:"created_at"`
}

// JobEvent represents a job lifecycle message from RabbitMQ
type JobEvent struct {
	Event   string `json:"event"`
	JobID   string `json:"job_id"`
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

// OutputFile is one file produced by a runner inside its work directory
type OutputFile struct {
	// Path is the absolute location on disk.
	Path string
	// Name is the slash separated path relative to the work directory.
	Name string
	Size int64
}
