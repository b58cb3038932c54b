package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
)

// MemoryStorage is a process-local job repository. It backs the "memory"
// database driver and tests.
type MemoryStorage struct {
	mu      sync.Mutex
	agents  map[string]domain.Agent
	jobs    map[string]domain.Job
	results map[string]domain.JobResult

	// FailCommit, when set, is returned by CompleteJob before anything changes.
	FailCommit error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		agents:  make(map[string]domain.Agent),
		jobs:    make(map[string]domain.Job),
		results: make(map[string]domain.JobResult),
	}
}

func (m *MemoryStorage) CreateAgent(_ context.Context, agent *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.ID]; ok {
		return domain.ErrAgentExists
	}
	m.agents[agent.ID] = *agent
	return nil
}

func (m *MemoryStorage) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return &agent, nil
}

func (m *MemoryStorage) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("failed to create job: duplicate id %s", job.ID)
	}
	m.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (m *MemoryStorage) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

func (m *MemoryStorage) ListJobs(_ context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]domain.Job, 0)
	for _, job := range m.jobs {
		if filter.AgentID != "" && job.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil {
			if job.CreatedAt.After(c.CreatedAt) {
				continue
			}
			if job.CreatedAt.Equal(c.CreatedAt) && job.ID >= c.JobID {
				continue
			}
		}
		jobs = append(jobs, cloneJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if limit := filter.PageSize + 1; len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryStorage) ListJobsForAgent(_ context.Context, agentID string, status domain.JobStatus, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]domain.Job, 0)
	for _, job := range m.jobs {
		if job.AgentID == agentID && job.Status == status {
			jobs = append(jobs, cloneJob(job))
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryStorage) UpdateJob(_ context.Context, job *domain.Job, expected domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Status != expected {
		return domain.ErrStatusConflict
	}

	m.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (m *MemoryStorage) CompleteJob(_ context.Context, result *domain.JobResult, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCommit != nil {
		return m.FailCommit
	}

	job, ok := m.jobs[result.JobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if _, exists := m.results[result.JobID]; exists || job.Status == domain.JobStatusCompleted {
		return domain.ErrAlreadyCompleted
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job is %s", domain.ErrJobNotRunning, job.Status)
	}

	job.Status = domain.JobStatusCompleted
	job.Progress = domain.MaxProgress
	job.UpdatedAt = completedAt
	job.CompletedAt = &completedAt
	m.jobs[job.ID] = job

	files := make(domain.Manifest, len(result.Files))
	copy(files, result.Files)
	m.results[result.JobID] = domain.JobResult{
		JobID:     result.JobID,
		Files:     files,
		CreatedAt: result.CreatedAt,
	}
	return nil
}

func (m *MemoryStorage) GetJobResult(_ context.Context, jobID string) (*domain.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.results[jobID]
	if !ok {
		return nil, domain.ErrJobResultNotFound
	}
	return &result, nil
}

// PutJobResult stores a result row as-is.
func (m *MemoryStorage) PutJobResult(result domain.JobResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.JobID] = result
}

// SetJob overwrites a job row as-is.
func (m *MemoryStorage) SetJob(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
}

func cloneJob(job domain.Job) domain.Job {
	if job.Params != nil {
		params := make(domain.Params, len(job.Params))
		for k, v := range job.Params {
			params[k] = v
		}
		job.Params = params
	}
	if job.DecisionReason != nil {
		reason := *job.DecisionReason
		job.DecisionReason = &reason
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		job.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		job.CompletedAt = &t
	}
	return job
}
