package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/cuongbtq/agent-jobs/internal/worker/runner"
	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
)

// JobClient is the part of the executor API the worker uses
type JobClient interface {
	ListPendingJobs(ctx context.Context, agentID string, limit int) ([]domain.Job, error)
	UpdateStatus(ctx context.Context, jobID, status string, progress *int, reason *string) error
	Complete(ctx context.Context, jobID string, outputs []domain.OutputFile) error
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Client         JobClient
	Runner         runner.TaskRunner
	Metrics        *metrics.Metrics
	RabbitClient   *rabbitmq.Client
	AgentID        string
	WorkRoot       string
	PollInterval   time.Duration
	JobTimeout     time.Duration
	MaxJobsPerPoll int
}

// Worker polls the job API for one agent and runs its jobs one at a time
type Worker struct {
	logger         *slog.Logger
	client         JobClient
	runner         runner.TaskRunner
	metrics        *metrics.Metrics
	rabbitClient   *rabbitmq.Client
	agentID        string
	workRoot       string
	pollInterval   time.Duration
	jobTimeout     time.Duration
	maxJobsPerPoll int

	shutdown atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	wake     chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Worker{
		logger:         cfg.Logger,
		client:         cfg.Client,
		runner:         cfg.Runner,
		metrics:        m,
		rabbitClient:   cfg.RabbitClient,
		agentID:        cfg.AgentID,
		workRoot:       cfg.WorkRoot,
		pollInterval:   cfg.PollInterval,
		jobTimeout:     cfg.JobTimeout,
		maxJobsPerPoll: cfg.MaxJobsPerPoll,
		stopChan:       make(chan struct{}),
		wake:           make(chan struct{}, 1),
	}
}

// Start runs the poll loop until Stop is called or ctx is canceled. Stop
// lets the job in flight finish; canceling ctx kills it.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("agent_id", w.agentID),
		slog.String("runner", w.runner.Name()),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.String("work_root", w.workRoot),
	)

	if err := os.MkdirAll(w.workRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create work root: %w", err)
	}

	if w.rabbitClient != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			w.logger.Warn("Job event wake-ups disabled, polling only",
				slog.Any("error", err),
			)
		} else {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.consumeWakeups(ctx, deliveries)
			}()
		}
	}

	for !w.shutdown.Load() {
		w.pollOnce(ctx)

		if w.shutdown.Load() {
			break
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		case <-w.stopChan:
		case <-w.wake:
			w.logger.Debug("Woken up by job event")
		case <-timer.C:
		}
		timer.Stop()
	}

	w.logger.Info("Worker stopped")
	return nil
}

// Run starts the poll loop and blocks until a signal arrives on quit or
// the loop fails. A signal stops polling and waits for the job in flight to
// finish, uploads included; the job timeout is its only bound.
func (w *Worker) Run(ctx context.Context, quit <-chan os.Signal) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case sig := <-quit:
		w.logger.Info("Received signal, finishing current job before exit",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		return err
	}

	w.Stop()
	return <-errChan
}

// Stop asks the loop to exit after the current job
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker after current job...")
		w.shutdown.Store(true)
		close(w.stopChan)
	})
}

// Wait blocks until background consumers have exited
func (w *Worker) Wait() {
	w.wg.Wait()
}

// notify wakes the poll loop without blocking
func (w *Worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// pollOnce fetches pending jobs and processes them sequentially. API
// outages are logged and retried on the next cycle.
func (w *Worker) pollOnce(ctx context.Context) {
	jobs, err := w.client.ListPendingJobs(ctx, w.agentID, w.maxJobsPerPoll)
	if err != nil {
		w.metrics.IncrementPollErrors()
		w.logger.Warn("API unreachable, retrying next interval",
			slog.Duration("retry_in", w.pollInterval),
			slog.Any("error", err),
		)
		return
	}

	if len(jobs) == 0 {
		w.logger.Debug("No pending jobs")
		return
	}

	for i := range jobs {
		if w.shutdown.Load() || ctx.Err() != nil {
			return
		}

		if err := w.processJob(ctx, &jobs[i]); err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				w.metrics.IncrementJobsSkipped()
				w.logger.Info("Job already claimed, skipping",
					slog.String("job_id", jobs[i].JobID),
				)
				continue
			}
			w.logger.Warn("Failed to process job",
				slog.String("job_id", jobs[i].JobID),
				slog.Any("error", err),
			)
		}
	}
}
