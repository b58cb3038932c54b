package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
)

const defaultContentType = "application/octet-stream"

// UploadFile is one file of a completion request.
// Size is the size declared by the client, -1 when unknown.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// CompletionRecord is returned after a completion commits.
type CompletionRecord struct {
	JobID       string
	Status      domain.JobStatus
	CompletedAt time.Time
}

// ResultFile is a manifest entry together with a temporary download url.
type ResultFile struct {
	domain.ManifestFile
	DownloadURL string
}

// ResultView is the buyer-facing view of a completed job.
type ResultView struct {
	JobID     string
	Files     []ResultFile
	CreatedAt time.Time
}

// CompleteJob uploads result files and commits the result together with the
// move to completed. On any failure after the first upload every uploaded
// object is deleted on a best-effort basis and the job stays running.
func (s *JobService) CompleteJob(ctx context.Context, jobID string, files []UploadFile) (*CompletionRecord, error) {
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: got %d, limit is %d", domain.ErrTooManyFiles, len(files), s.maxFiles)
	}
	for _, f := range files {
		if f.Size > s.maxFileSize {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrFileTooLarge, f.Filename, f.Size, s.maxFileSize)
		}
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusCompleted {
		return nil, domain.ErrAlreadyCompleted
	}
	if job.Status != domain.JobStatusRunning {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobNotRunning, job.Status)
	}

	manifest := make(domain.Manifest, 0, len(files))
	uploaded := make([]string, 0, len(files))

	for idx, f := range files {
		key := BuildResultObjectKey(jobID, idx, s.newObjectID(), f.Filename)
		contentType := f.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}

		guard := &sizeGuard{r: f.Content, limit: s.maxFileSize}
		storedKey, err := s.store.Put(ctx, key, guard, contentType)
		if err != nil {
			s.rollback(ctx, jobID, uploaded)
			if errors.Is(err, domain.ErrFileTooLarge) || guard.exceeded {
				return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrFileTooLarge, f.Filename, s.maxFileSize)
			}
			s.logger.Error("Failed to upload result file",
				slog.String("job_id", jobID),
				slog.String("filename", f.Filename),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
		}

		uploaded = append(uploaded, storedKey)
		manifest = append(manifest, domain.ManifestFile{
			Path:      storedKey,
			SizeBytes: guard.n,
			MimeType:  contentType,
		})
	}

	completedAt := s.now()
	result := &domain.JobResult{
		JobID:     jobID,
		Files:     manifest,
		CreatedAt: completedAt,
	}

	if err := s.repo.CompleteJob(ctx, result, completedAt); err != nil {
		s.rollback(ctx, jobID, uploaded)
		switch {
		case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrJobNotRunning):
			s.metrics.IncrementClaimConflicts()
			return nil, err
		default:
			s.logger.Error("Failed to commit job result",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("%w: %v", domain.ErrCommitFailed, err)
		}
	}

	s.metrics.IncrementJobsCompleted(len(manifest))
	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.Int("files", len(manifest)),
	)

	job.Status = domain.JobStatusCompleted
	job.Progress = domain.MaxProgress
	job.UpdatedAt = completedAt
	job.CompletedAt = &completedAt
	s.publish(ctx, domain.EventJobCompleted, job)

	return &CompletionRecord{
		JobID:       jobID,
		Status:      domain.JobStatusCompleted,
		CompletedAt: completedAt,
	}, nil
}

// rollback deletes objects uploaded by a failed completion. It runs detached
// from the request context so a cancelled client does not leave orphans.
func (s *JobService) rollback(ctx context.Context, jobID string, keys []string) {
	if len(keys) == 0 {
		return
	}

	s.metrics.IncrementUploadRollbacks()
	cleanupCtx := context.WithoutCancel(ctx)

	for _, key := range keys {
		if err := s.store.Delete(cleanupCtx, key); err != nil {
			s.metrics.IncrementOrphanedObjects()
			s.logger.Error("Failed to delete uploaded object during rollback",
				slog.String("job_id", jobID),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

// GetResult returns the manifest of a completed job with fresh download urls.
func (s *JobService) GetResult(ctx context.Context, jobID string) (*ResultView, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobNotCompleted, job.Status)
	}

	result, err := s.repo.GetJobResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := result.Files.Validate(); err != nil {
		return nil, err
	}

	view := &ResultView{
		JobID:     jobID,
		Files:     make([]ResultFile, 0, len(result.Files)),
		CreatedAt: result.CreatedAt,
	}
	for _, f := range result.Files {
		url, err := s.store.Presign(ctx, f.Path, s.presignTTL)
		if err != nil {
			s.logger.Error("Failed to presign result file",
				slog.String("job_id", jobID),
				slog.String("key", f.Path),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("%w: %v", domain.ErrPresignFailed, err)
		}
		view.Files = append(view.Files, ResultFile{ManifestFile: f, DownloadURL: url})
	}

	return view, nil
}

// sizeGuard counts bytes read and fails once more than limit bytes arrive.
type sizeGuard struct {
	r        io.Reader
	limit    int64
	n        int64
	exceeded bool
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.n += int64(n)
	if g.n > g.limit {
		g.exceeded = true
		return n, domain.ErrFileTooLarge
	}
	return n, err
}
