package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/google/uuid"
)

// StatusUpdate is a worker's request to move a job to another status.
type StatusUpdate struct {
	Status   domain.JobStatus
	Progress *int
	Reason   *string
}

// CreateJob inserts a pending job for an existing agent.
func (s *JobService) CreateJob(ctx context.Context, agentID, prompt string, params domain.Params) (*domain.Job, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}

	if _, err := s.repo.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}

	if params == nil {
		params = domain.Params{}
	}

	now := s.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Prompt:    prompt,
		Params:    params,
		Status:    domain.JobStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.metrics.IncrementJobsCreated()
	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("agent_id", agentID),
	)
	s.publish(ctx, domain.EventJobCreated, job)

	return job, nil
}

// GetJob returns one job snapshot.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// ListJobs returns up to filter.PageSize+1 jobs, newest first; the extra row
// tells the caller another page exists.
func (s *JobService) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.ListJobs(ctx, filter)
}

// ListJobsForAgent returns an agent's jobs in one status, oldest first.
func (s *JobService) ListJobsForAgent(ctx context.Context, agentID string, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if status == "" {
		status = domain.JobStatusPending
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	switch {
	case limit <= 0:
		limit = DefaultAgentListLimit
	case limit > MaxAgentListLimit:
		limit = MaxAgentListLimit
	}

	return s.repo.ListJobsForAgent(ctx, agentID, status, limit)
}

// UpdateStatus validates and applies a status transition. The write is
// conditional on the status that was read, so of two concurrent claims on a
// pending job exactly one succeeds and the other gets ErrInvalidTransition.
func (s *JobService) UpdateStatus(ctx context.Context, jobID string, update StatusUpdate) (*domain.Job, error) {
	if !update.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	if update.Progress != nil {
		if !domain.AcceptsProgress(update.Status) {
			return nil, domain.ErrInvalidProgressUpdate
		}
		if *update.Progress < 0 || *update.Progress > domain.MaxProgress {
			return nil, domain.ErrInvalidProgress
		}
	}

	if update.Reason != nil && !domain.AcceptsReason(update.Status) {
		return nil, domain.ErrInvalidReasonUpdate
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	current := job.Status
	if !domain.IsValidTransition(current, update.Status) {
		s.logger.Info("Rejected status transition",
			slog.String("job_id", jobID),
			slog.String("from", string(current)),
			slog.String("to", string(update.Status)),
		)
		return nil, fmt.Errorf("%w: cannot transition job from %s to %s", domain.ErrInvalidTransition, current, update.Status)
	}

	now := s.now()
	job.Status = update.Status
	job.UpdatedAt = now

	if update.Status == domain.JobStatusRunning {
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		if update.Progress != nil {
			job.Progress = *update.Progress
		}
	}

	if domain.AcceptsReason(update.Status) {
		if update.Reason != nil {
			reason := domain.TruncateReason(*update.Reason)
			job.DecisionReason = &reason
		}
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
	}

	if err := s.repo.UpdateJob(ctx, job, current); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			s.metrics.IncrementClaimConflicts()
			s.logger.Info("Job status changed concurrently",
				slog.String("job_id", jobID),
				slog.String("expected", string(current)),
				slog.String("requested", string(update.Status)),
			)
			return nil, fmt.Errorf("%w: job left %s before the update committed", domain.ErrInvalidTransition, current)
		}
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	s.metrics.IncrementTransition(string(update.Status))
	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("from", string(current)),
		slog.String("to", string(job.Status)),
		slog.Int("progress", job.Progress),
	)
	s.publish(ctx, domain.EventJobStatusChanged, job)

	return job, nil
}
