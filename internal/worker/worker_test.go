package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/worker/client"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ JobClient = (*client.Client)(nil)

const (
	testAgentID = "55555555-5555-5555-5555-555555555555"
	jobA        = "aaaaaaaa-0000-0000-0000-000000000001"
	jobB        = "bbbbbbbb-0000-0000-0000-000000000002"
)

type statusCall struct {
	JobID    string
	Status   string
	Progress *int
	Reason   *string
}

type fakeClient struct {
	mu        sync.Mutex
	jobs      []domain.Job
	listErr   error
	claimErr  map[string]error
	uploadErr error
	statuses  []statusCall
	completed map[string][]string
}

func newFakeClient(jobs ...domain.Job) *fakeClient {
	return &fakeClient{
		jobs:      jobs,
		claimErr:  map[string]error{},
		completed: map[string][]string{},
	}
}

func (f *fakeClient) ListPendingJobs(_ context.Context, agentID string, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	jobs := f.jobs
	f.jobs = nil
	return jobs, nil
}

func (f *fakeClient) UpdateStatus(_ context.Context, jobID, status string, progress *int, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == domain.JobStatusAccepted {
		if err := f.claimErr[jobID]; err != nil {
			return err
		}
	}
	f.statuses = append(f.statuses, statusCall{JobID: jobID, Status: status, Progress: progress, Reason: reason})
	return nil
}

func (f *fakeClient) Complete(_ context.Context, jobID string, outputs []domain.OutputFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	for _, o := range outputs {
		if _, err := os.Stat(o.Path); err != nil {
			return err
		}
		f.completed[jobID] = append(f.completed[jobID], o.Name)
	}
	return nil
}

func (f *fakeClient) statusesFor(jobID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.statuses {
		if s.JobID == jobID {
			out = append(out, s.Status)
		}
	}
	return out
}

func (f *fakeClient) failReason(jobID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.statuses {
		if s.JobID == jobID && s.Status == domain.JobStatusFailed && s.Reason != nil {
			return *s.Reason
		}
	}
	return ""
}

type fakeRunner struct {
	run   func(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error)
	seen  []string
	dirMu sync.Mutex
}

func (r *fakeRunner) Name() string { return "fake" }

func (r *fakeRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	r.dirMu.Lock()
	r.seen = append(r.seen, workDir)
	r.dirMu.Unlock()
	return r.run(ctx, job, workDir)
}

func writeOutput(workDir, name, content string) ([]domain.OutputFile, error) {
	path := filepath.Join(workDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return []domain.OutputFile{{Path: path, Name: name, Size: int64(len(content))}}, nil
}

func newTestWorker(t *testing.T, c JobClient, r *fakeRunner) *Worker {
	t.Helper()
	return NewWorker(&Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Client:         c,
		Runner:         r,
		Metrics:        metrics.NewMetrics(),
		AgentID:        testAgentID,
		WorkRoot:       t.TempDir(),
		PollInterval:   20 * time.Millisecond,
		JobTimeout:     time.Second,
		MaxJobsPerPoll: 50,
	})
}

func TestPollOnce_Success(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: jobA, Prompt: "p"})
	r := &fakeRunner{run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
		return writeOutput(workDir, "out.md", "done")
	}}
	w := newTestWorker(t, fc, r)

	w.pollOnce(context.Background())

	assert.Equal(t, []string{"accepted", "running"}, fc.statusesFor(jobA))
	assert.Equal(t, []string{"out.md"}, fc.completed[jobA])
	require.Len(t, fc.statuses, 2)
	require.NotNil(t, fc.statuses[1].Progress)
	assert.Equal(t, domain.RunningProgress, *fc.statuses[1].Progress)

	require.Len(t, r.seen, 1)
	assert.Equal(t, filepath.Join(w.workRoot, jobA), r.seen[0])
	assert.NoDirExists(t, r.seen[0])
	assert.Equal(t, int64(1), w.metrics.GetSnapshot()["jobs_processed"])
}

func TestPollOnce_ClaimConflictSkipsJob(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: jobA}, domain.Job{JobID: jobB})
	fc.claimErr[jobA] = domain.ErrJobAlreadyClaimed
	r := &fakeRunner{run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
		return writeOutput(workDir, "out.txt", "x")
	}}
	w := newTestWorker(t, fc, r)

	w.pollOnce(context.Background())

	assert.Empty(t, fc.statusesFor(jobA))
	assert.Equal(t, []string{"accepted", "running"}, fc.statusesFor(jobB))
	assert.Len(t, r.seen, 1)
	assert.Equal(t, int64(1), w.metrics.GetSnapshot()["jobs_skipped"])
}

func TestPollOnce_Failures(t *testing.T) {
	longStderr := strings.Repeat("e", 600)

	tests := []struct {
		name       string
		run        func(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error)
		uploadErr  error
		wantReason string
	}{
		{
			name: "timeout",
			run: func(context.Context, *domain.Job, string) ([]domain.OutputFile, error) {
				return nil, domain.ErrJobTimeout
			},
			wantReason: "Job timed out",
		},
		{
			name: "no output",
			run: func(context.Context, *domain.Job, string) ([]domain.OutputFile, error) {
				return nil, nil
			},
			wantReason: "No output produced",
		},
		{
			name: "non-zero exit with long stderr",
			run: func(context.Context, *domain.Job, string) ([]domain.OutputFile, error) {
				return nil, &domain.CommandError{Name: "claude", ExitCode: 1, Stderr: longStderr}
			},
			wantReason: strings.Repeat("e", domain.MaxReasonLength),
		},
		{
			name: "non-zero exit without stderr",
			run: func(context.Context, *domain.Job, string) ([]domain.OutputFile, error) {
				return nil, &domain.CommandError{Name: "gemini", ExitCode: 2}
			},
			wantReason: "gemini exited with code 2",
		},
		{
			name: "upload transport error",
			run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
				return writeOutput(workDir, "out.txt", "x")
			},
			uploadErr:  domain.NewRetryableError(errors.New("connection refused")),
			wantReason: "retryable error: connection refused",
		},
		{
			name: "everything oversized",
			run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
				return writeOutput(workDir, "big.bin", "x")
			},
			uploadErr:  domain.ErrNoUploadableFiles,
			wantReason: "All output files exceeded size limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeClient(domain.Job{JobID: jobA})
			fc.uploadErr = tt.uploadErr
			r := &fakeRunner{run: tt.run}
			w := newTestWorker(t, fc, r)

			w.pollOnce(context.Background())

			assert.Equal(t, []string{"accepted", "running", "failed"}, fc.statusesFor(jobA))
			assert.Equal(t, tt.wantReason, fc.failReason(jobA))
			assert.NoDirExists(t, filepath.Join(w.workRoot, jobA))
		})
	}
}

func TestPollOnce_JobTimeoutCancelsRunner(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: jobA})
	r := &fakeRunner{run: func(ctx context.Context, _ *domain.Job, _ string) ([]domain.OutputFile, error) {
		<-ctx.Done()
		return nil, domain.ErrJobTimeout
	}}
	w := newTestWorker(t, fc, r)
	w.jobTimeout = 50 * time.Millisecond

	w.pollOnce(context.Background())

	assert.Equal(t, "Job timed out", fc.failReason(jobA))
}

func TestPollOnce_ListErrorIsCounted(t *testing.T) {
	fc := newFakeClient()
	fc.listErr = domain.NewRetryableError(errors.New("dial tcp: connection refused"))
	w := newTestWorker(t, fc, &fakeRunner{})

	w.pollOnce(context.Background())

	assert.Equal(t, int64(1), w.metrics.GetSnapshot()["poll_errors"])
	assert.Empty(t, fc.statuses)
}

func TestPollOnce_InvalidJobIDIsNotClaimed(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: "../../etc"})
	w := newTestWorker(t, fc, &fakeRunner{})

	w.pollOnce(context.Background())

	assert.Empty(t, fc.statuses)
}

func TestStop_FinishesCurrentJobOnly(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: jobA}, domain.Job{JobID: jobB})
	var w *Worker
	r := &fakeRunner{run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
		w.Stop()
		return writeOutput(workDir, "out.txt", "x")
	}}
	w = newTestWorker(t, fc, r)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, []string{"out.txt"}, fc.completed[jobA])
	assert.Empty(t, fc.statusesFor(jobB))
}

func TestRun_SignalLetsJobInFlightFinish(t *testing.T) {
	fc := newFakeClient(domain.Job{JobID: jobA}, domain.Job{JobID: jobB})
	started := make(chan struct{})
	r := &fakeRunner{run: func(ctx context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
		close(started)
		// outlives the signal by far, but stays inside the job timeout
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
		return writeOutput(workDir, "slow.md", "finished")
	}}
	w := newTestWorker(t, fc, r)
	w.jobTimeout = 3 * time.Second

	quit := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), quit) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	quit <- syscall.SIGTERM

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after the job finished")
	}
	w.Wait()

	assert.Equal(t, []string{"accepted", "running"}, fc.statusesFor(jobA))
	assert.Equal(t, []string{"slow.md"}, fc.completed[jobA])
	assert.Empty(t, fc.failReason(jobA))
	assert.Empty(t, fc.statusesFor(jobB))
}

func TestRun_IdleWorkerExitsOnSignal(t *testing.T) {
	w := newTestWorker(t, newFakeClient(), &fakeRunner{})
	w.pollInterval = time.Hour

	quit := make(chan os.Signal, 1)
	quit <- os.Interrupt

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), quit) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("idle worker did not exit")
	}
}

func TestRun_ReturnsStartError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := newTestWorker(t, newFakeClient(), &fakeRunner{})
	w.workRoot = filepath.Join(blocker, "work")

	err := w.Run(context.Background(), make(chan os.Signal))
	assert.ErrorContains(t, err, "failed to create work root")
}

func TestStart_ReturnsOnContextCancel(t *testing.T) {
	w := newTestWorker(t, newFakeClient(), &fakeRunner{})
	w.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStart_WakeSkipsPollWait(t *testing.T) {
	fc := newFakeClient()
	processed := make(chan struct{}, 1)
	r := &fakeRunner{run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
		processed <- struct{}{}
		return writeOutput(workDir, "out.txt", "x")
	}}
	w := newTestWorker(t, fc, r)
	w.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Let the first, empty poll happen before queueing the job
	time.Sleep(50 * time.Millisecond)
	fc.mu.Lock()
	fc.jobs = []domain.Job{{JobID: jobA}}
	fc.mu.Unlock()

	assert.True(t, w.handleEvent([]byte(`{"event":"job.created","job_id":"`+jobA+`","agent_id":"`+testAgentID+`"}`)))

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("wake-up did not trigger a poll")
	}
	w.Stop()
}

func TestHandleEvent(t *testing.T) {
	w := newTestWorker(t, newFakeClient(), &fakeRunner{})

	assert.False(t, w.handleEvent([]byte("not json")))

	assert.True(t, w.handleEvent([]byte(`{"event":"job.created","agent_id":"someone-else"}`)))
	assert.Len(t, w.wake, 0)

	assert.True(t, w.handleEvent([]byte(`{"event":"job.completed","agent_id":"`+testAgentID+`"}`)))
	assert.Len(t, w.wake, 0)

	assert.True(t, w.handleEvent([]byte(`{"event":"job.created","agent_id":"`+testAgentID+`"}`)))
	assert.True(t, w.handleEvent([]byte(`{"event":"job.created","agent_id":"`+testAgentID+`"}`)))
	assert.Len(t, w.wake, 1)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "Job timed out", failureReason(domain.ErrJobTimeout))
	assert.Equal(t, "No output produced", failureReason(domain.ErrNoOutput))
	assert.Equal(t, "boom", failureReason(&domain.CommandError{Name: "x", ExitCode: 1, Stderr: "boom"}))
	assert.Len(t, []rune(failureReason(errors.New(strings.Repeat("é", 700)))), domain.MaxReasonLength)
}
