package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const jobColumns = `
	id, agent_id, prompt, params, status, progress,
	decision_reason, created_at, started_at, updated_at, completed_at
`

// Storage is the SQL job repository. Queries are written with ? placeholders
// and rebound for the connected driver.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(client *database.Client) *Storage {
	return &Storage{
		db: client.GetDB(),
	}
}

// NewStorageFromDB wraps an open handle.
func NewStorageFromDB(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := s.db.Rebind(`
		INSERT INTO agents (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Description,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAgentExists
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

func (s *Storage) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	var agent domain.Agent
	query := s.db.Rebind(`
		SELECT id, name, description, created_at, updated_at
		FROM agents
		WHERE id = ?
	`)

	if err := s.db.GetContext(ctx, &agent, query, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	return &agent, nil
}

func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := s.db.Rebind(`
		INSERT INTO jobs (
			id, agent_id, prompt, params, status, progress,
			decision_reason, created_at, started_at, updated_at, completed_at
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?
		)
	`)

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.AgentID,
		job.Prompt,
		job.Params,
		job.Status,
		job.Progress,
		job.DecisionReason,
		job.CreatedAt,
		job.StartedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.getJob(ctx, s.db, jobID)
}

func (s *Storage) getJob(ctx context.Context, q sqlx.QueryerContext, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	if err := sqlx.GetContext(ctx, q, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Storage) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}

	if filter.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at, id) < (?, ?)"
		args = append(args, filter.Cursor.CreatedAt.UTC(), filter.Cursor.JobID)
	}

	// Newest first; id breaks ties between jobs created in the same instant
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += " LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (s *Storage) ListJobsForAgent(ctx context.Context, agentID string, status domain.JobStatus, limit int) ([]domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE agent_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, agentID, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs for agent: %w", err)
	}

	return jobs, nil
}

// UpdateJob writes the mutable job fields only if the row still has the
// expected status.
func (s *Storage) UpdateJob(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?, progress = ?, decision_reason = ?,
			started_at = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		job.Status,
		job.Progress,
		job.DecisionReason,
		job.StartedAt,
		job.UpdatedAt,
		job.CompletedAt,
		job.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, job.ID); err != nil {
			return err
		}
		return domain.ErrStatusConflict
	}

	return nil
}

// CompleteJob flips a running job to completed and stores its manifest in
// one transaction.
func (s *Storage) CompleteJob(ctx context.Context, result *domain.JobResult, completedAt time.Time) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	update := tx.Rebind(`
		UPDATE jobs
		SET status = ?, progress = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`)
	res, err := tx.ExecContext(ctx, update,
		domain.JobStatusCompleted,
		domain.MaxProgress,
		completedAt,
		completedAt,
		result.JobID,
		domain.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		job, getErr := s.getJob(ctx, tx, result.JobID)
		if getErr != nil {
			return getErr
		}
		if job.Status == domain.JobStatusCompleted {
			return domain.ErrAlreadyCompleted
		}
		return fmt.Errorf("%w: job is %s", domain.ErrJobNotRunning, job.Status)
	}

	insert := tx.Rebind(`
		INSERT INTO job_results (job_id, files, created_at)
		VALUES (?, ?, ?)
	`)
	if _, err = tx.ExecContext(ctx, insert, result.JobID, result.Files, result.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyCompleted
		}
		return fmt.Errorf("failed to insert job result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Storage) GetJobResult(ctx context.Context, jobID string) (*domain.JobResult, error) {
	var result domain.JobResult
	query := s.db.Rebind(`
		SELECT job_id, files, created_at
		FROM job_results
		WHERE job_id = ?
	`)

	if err := s.db.GetContext(ctx, &result, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobResultNotFound
		}
		if errors.Is(err, domain.ErrInvalidManifest) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}

	return &result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	return false
}
