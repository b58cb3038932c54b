package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/google/uuid"
)

const (
	// DefaultMaxFiles bounds the number of files accepted by one completion.
	DefaultMaxFiles = 20
	// DefaultMaxFileSize bounds each completion file (50 MiB).
	DefaultMaxFileSize int64 = 50 * 1024 * 1024
	// DefaultPresignTTL is the lifetime of generated download urls.
	DefaultPresignTTL = time.Hour
	// DefaultAgentListLimit caps one worker poll when the caller gives no limit.
	DefaultAgentListLimit = 50
	// MaxAgentListLimit is the hard cap of one worker poll.
	MaxAgentListLimit = 100
)

// JobRepository persists agents, jobs and job results.
// UpdateJob must only apply when the stored status still equals expected and
// return domain.ErrStatusConflict otherwise. CompleteJob must insert the
// result and flip the job from running to completed in one transaction.
type JobRepository interface {
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)
	ListJobsForAgent(ctx context.Context, agentID string, status domain.JobStatus, limit int) ([]domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job, expected domain.JobStatus) error
	CompleteJob(ctx context.Context, result *domain.JobResult, completedAt time.Time) error
	GetJobResult(ctx context.Context, jobID string) (*domain.JobResult, error)
}

// ObjectStore is the blob store holding result files.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher announces committed job mutations.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event domain.JobEvent) error
}

// Config holds JobService dependencies and limits.
type Config struct {
	Logger      *slog.Logger
	Repository  JobRepository
	ObjectStore ObjectStore
	Publisher   EventPublisher
	Metrics     *metrics.Metrics
	MaxFiles    int
	MaxFileSize int64
	PresignTTL  time.Duration
}

// JobService orchestrates job creation, status transitions and completion.
type JobService struct {
	logger      *slog.Logger
	repo        JobRepository
	store       ObjectStore
	publisher   EventPublisher
	metrics     *metrics.Metrics
	maxFiles    int
	maxFileSize int64
	presignTTL  time.Duration
	now         func() time.Time
	newObjectID func() string
}

// NewJobService creates a new JobService instance
func NewJobService(cfg *Config) *JobService {
	s := &JobService{
		logger:      cfg.Logger,
		repo:        cfg.Repository,
		store:       cfg.ObjectStore,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		maxFiles:    cfg.MaxFiles,
		maxFileSize: cfg.MaxFileSize,
		presignTTL:  cfg.PresignTTL,
		now:         func() time.Time { return time.Now().UTC() },
		newObjectID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxFiles <= 0 {
		s.maxFiles = DefaultMaxFiles
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	if s.presignTTL <= 0 {
		s.presignTTL = DefaultPresignTTL
	}

	return s
}

// MaxFiles returns the per-completion file count limit.
func (s *JobService) MaxFiles() int {
	return s.maxFiles
}

// MaxFileSize returns the per-file size limit in bytes.
func (s *JobService) MaxFileSize() int64 {
	return s.maxFileSize
}

// publish sends a job event. Failures are logged and never undo the mutation.
func (s *JobService) publish(ctx context.Context, eventType string, job *domain.Job) {
	if s.publisher == nil {
		return
	}

	event := domain.JobEvent{
		Event:      eventType,
		JobID:      job.ID,
		AgentID:    job.AgentID,
		Status:     job.Status,
		OccurredAt: job.UpdatedAt,
	}

	if err := s.publisher.PublishJobEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Failed to publish job event",
			slog.String("event", eventType),
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
