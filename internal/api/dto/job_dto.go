package dto

import (
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
)

type CreateJobRequest struct {
	AgentID string         `json:"agent_id" binding:"required,uuid"`
	Prompt  string         `json:"prompt" binding:"required"`
	Params  map[string]any `json:"params"`
}

type CreateJobResponse struct {
	JobID     string           `json:"job_id"`
	AgentID   string           `json:"agent_id"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

type ListJobsRequest struct {
	AgentID  string `form:"agent_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type ExecutorListJobsRequest struct {
	AgentID string `form:"agent_id" binding:"required,uuid"`
	Status  string `form:"status"`
	Limit   int    `form:"limit"`
}

type ExecutorListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type JobDTO struct {
	JobID          string           `json:"job_id"`
	AgentID        string           `json:"agent_id"`
	Prompt         string           `json:"prompt"`
	Params         map[string]any   `json:"params"`
	Status         domain.JobStatus `json:"status"`
	Progress       int              `json:"progress"`
	DecisionReason *string          `json:"decision_reason"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
}

type UpdateJobStatusRequest struct {
	Status   string  `json:"status" binding:"required"`
	Progress *int    `json:"progress"`
	Reason   *string `json:"reason"`
}

type UpdateJobStatusResponse struct {
	JobID          string           `json:"job_id"`
	Status         domain.JobStatus `json:"status"`
	Progress       int              `json:"progress"`
	DecisionReason *string          `json:"decision_reason"`
	StartedAt      *time.Time       `json:"started_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
}

type CompleteJobResponse struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	CompletedAt time.Time        `json:"completed_at"`
}

type ManifestFileDTO struct {
	Path        string `json:"path"`
	DownloadURL string `json:"download_url"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type"`
}

type JobResultResponse struct {
	JobID  string            `json:"job_id"`
	Status domain.JobStatus  `json:"status"`
	Files  []ManifestFileDTO `json:"files"`
}

type RegisterAgentRequest struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type AgentDTO struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewJobDTO converts a job to its wire form.
func NewJobDTO(job *domain.Job) JobDTO {
	params := map[string]any(job.Params)
	if params == nil {
		params = map[string]any{}
	}
	return JobDTO{
		JobID:          job.ID,
		AgentID:        job.AgentID,
		Prompt:         job.Prompt,
		Params:         params,
		Status:         job.Status,
		Progress:       job.Progress,
		DecisionReason: job.DecisionReason,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
}

func NewAgentDTO(agent *domain.Agent) AgentDTO {
	return AgentDTO{
		AgentID:     agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
		CreatedAt:   agent.CreatedAt,
		UpdatedAt:   agent.UpdatedAt,
	}
}
