package worker

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apidomain "github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/cuongbtq/agent-jobs/internal/api/objectstore"
	"github.com/cuongbtq/agent-jobs/internal/api/router"
	"github.com/cuongbtq/agent-jobs/internal/api/service"
	"github.com/cuongbtq/agent-jobs/internal/api/storage"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/worker/client"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eExecutorKey = "executor-key"

type e2eEnv struct {
	svc    *service.JobService
	server *httptest.Server
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := storage.NewMemoryStorage()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateAgent(context.Background(), &apidomain.Agent{
		ID: testAgentID, Name: "default", CreatedAt: now, UpdatedAt: now,
	}))

	store, err := objectstore.NewFileStore(objectstore.Config{
		RootDir:       t.TempDir(),
		PublicBaseURL: "http://files.test",
		SigningSecret: "secret",
	})
	require.NoError(t, err)

	m := metrics.NewMetrics()
	svc := service.NewJobService(&service.Config{
		Logger:      logger,
		Repository:  repo,
		ObjectStore: store,
		Metrics:     m,
	})

	srv := httptest.NewServer(router.SetupRouter(&handler.Dependencies{
		Logger:          logger,
		Service:         svc,
		ObjectStore:     store,
		Metrics:         m,
		ServiceName:     "agent-jobs-api",
		BuyerAPIKeys:    []string{"buyer-key"},
		ExecutorAPIKeys: []string{e2eExecutorKey},
	}))
	t.Cleanup(srv.Close)

	return &e2eEnv{svc: svc, server: srv}
}

func (e *e2eEnv) newWorker(t *testing.T, r *fakeRunner) *Worker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewWorker(&Config{
		Logger: logger,
		Client: client.NewClient(&client.Config{
			Logger:  logger,
			BaseURL: e.server.URL,
			APIKey:  e2eExecutorKey,
		}),
		Runner:         r,
		AgentID:        testAgentID,
		WorkRoot:       t.TempDir(),
		PollInterval:   time.Second,
		JobTimeout:     5 * time.Second,
		MaxJobsPerPoll: 50,
	})
}

func TestEndToEnd_CompletesJob(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, testAgentID, "write a poem", apidomain.Params{"style": "haiku"})
	require.NoError(t, err)

	var gotPrompt string
	r := &fakeRunner{run: func(_ context.Context, j *domain.Job, workDir string) ([]domain.OutputFile, error) {
		gotPrompt = j.Prompt
		return writeOutput(workDir, "poem.md", "an old silent pond")
	}}
	w := env.newWorker(t, r)

	w.pollOnce(ctx)

	stored, err := env.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, apidomain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "write a poem", gotPrompt)

	result, err := env.svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.True(t, strings.HasSuffix(result.Files[0].Path, "-poem.md"))
	assert.Equal(t, int64(len("an old silent pond")), result.Files[0].SizeBytes)
	assert.Contains(t, result.Files[0].MimeType, "text/plain")

	require.Len(t, r.seen, 1)
	assert.NoDirExists(t, r.seen[0])
}

func TestEndToEnd_ZeroOutputFailsJob(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, testAgentID, "do nothing", nil)
	require.NoError(t, err)

	w := env.newWorker(t, &fakeRunner{run: func(context.Context, *domain.Job, string) ([]domain.OutputFile, error) {
		return nil, nil
	}})

	w.pollOnce(ctx)

	stored, err := env.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, apidomain.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.DecisionReason)
	assert.Equal(t, "No output produced", *stored.DecisionReason)
	assert.NotNil(t, stored.CompletedAt)
}

func TestEndToEnd_OnlyOneWorkerClaims(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, testAgentID, "contended", nil)
	require.NoError(t, err)

	var runs atomic.Int32
	newRunner := func() *fakeRunner {
		return &fakeRunner{run: func(_ context.Context, _ *domain.Job, workDir string) ([]domain.OutputFile, error) {
			runs.Add(1)
			return writeOutput(workDir, "out.txt", "x")
		}}
	}

	// Both workers list the job before either claims it
	var listed sync.WaitGroup
	listed.Add(2)
	workers := []*Worker{env.newWorker(t, newRunner()), env.newWorker(t, newRunner())}
	for _, w := range workers {
		w.client = &barrierClient{JobClient: w.client, listed: &listed}
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.pollOnce(ctx)
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())

	stored, err := env.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, apidomain.JobStatusCompleted, stored.Status)

	skipped := workers[0].metrics.GetSnapshot()["jobs_skipped"] + workers[1].metrics.GetSnapshot()["jobs_skipped"]
	assert.Equal(t, int64(1), skipped)
}

// barrierClient holds every ListPendingJobs answer until all workers have
// listed.
type barrierClient struct {
	JobClient
	listed *sync.WaitGroup
}

func (b *barrierClient) ListPendingJobs(ctx context.Context, agentID string, limit int) ([]domain.Job, error) {
	jobs, err := b.JobClient.ListPendingJobs(ctx, agentID, limit)
	b.listed.Done()
	b.listed.Wait()
	return jobs, err
}
