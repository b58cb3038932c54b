package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/google/uuid"
)

// processJob claims a job, runs it and reports the outcome. Only claim
// failures are returned; everything after a successful claim ends with the
// job completed or failed.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) error {
	// Job ids name the work directory
	if _, err := uuid.Parse(job.JobID); err != nil {
		return fmt.Errorf("invalid job_id %q: %w", job.JobID, err)
	}

	w.logger.Info("Processing job",
		slog.String("job_id", job.JobID),
		slog.String("runner", w.runner.Name()),
	)

	// Claim: pending -> accepted
	if err := w.client.UpdateStatus(ctx, job.JobID, domain.JobStatusAccepted, nil, nil); err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	workDir := filepath.Join(w.workRoot, job.JobID)
	defer w.removeWorkDir(job.JobID, workDir)

	count, err := w.executeJob(ctx, job, workDir)
	if err != nil {
		w.markFailed(ctx, job.JobID, err)
		return nil
	}

	w.metrics.IncrementJobsProcessed()
	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.Int("files", count),
	)

	return nil
}

// executeJob runs the job under the job timeout and uploads its outputs.
// It returns the number of uploaded candidates.
func (w *Worker) executeJob(ctx context.Context, job *domain.Job, workDir string) (int, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create work dir: %w", err)
	}

	progress := domain.RunningProgress
	if err := w.client.UpdateStatus(ctx, job.JobID, domain.JobStatusRunning, &progress, nil); err != nil {
		return 0, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	outputs, err := w.runner.Run(jobCtx, job, workDir)
	cancel()
	if err != nil {
		return 0, err
	}

	if len(outputs) == 0 {
		return 0, domain.ErrNoOutput
	}

	if err := w.client.Complete(ctx, job.JobID, outputs); err != nil {
		return 0, err
	}

	return len(outputs), nil
}

// markFailed reports the job as failed. It still runs when ctx was canceled
// so an interrupted job does not stay running.
func (w *Worker) markFailed(ctx context.Context, jobID string, cause error) {
	reason := failureReason(cause)

	w.logger.Warn("Job failed",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
		slog.Any("error", cause),
	)

	if err := w.client.UpdateStatus(context.WithoutCancel(ctx), jobID, domain.JobStatusFailed, nil, &reason); err != nil {
		w.logger.Error("Unable to mark job as failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) removeWorkDir(jobID, workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		w.logger.Error("Failed to remove work dir",
			slog.String("job_id", jobID),
			slog.String("work_dir", workDir),
			slog.Any("error", err),
		)
	}
}

// failureReason renders the decision reason reported for a failed job.
func failureReason(err error) string {
	var cmdErr *domain.CommandError

	switch {
	case errors.Is(err, domain.ErrJobTimeout):
		return "Job timed out"
	case errors.Is(err, domain.ErrNoOutput):
		return "No output produced"
	case errors.Is(err, domain.ErrNoUploadableFiles):
		return "All output files exceeded size limit"
	case errors.As(err, &cmdErr):
		return cmdErr.Reason()
	}

	return domain.TruncateReason(err.Error())
}
