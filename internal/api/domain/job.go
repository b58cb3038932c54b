package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// JobStatus is the lifecycle state of a job. Values match jobs.status.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAccepted  JobStatus = "accepted"
	JobStatusRejected  JobStatus = "rejected"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAccepted,
	JobStatusRejected,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
}

// Valid reports whether s is one of the six known statuses.
func (s JobStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	// MaxReasonLength bounds decision reasons stored on rejected/failed jobs.
	MaxReasonLength = 500
	// MaxProgress is the upper bound of Job.Progress.
	MaxProgress = 100
)

// Job is one unit of dispatchable work tied to an agent identity.
type Job struct {
	ID             string     `db:"id"`
	AgentID        string     `db:"agent_id"`
	Prompt         string     `db:"prompt"`
	Params         Params     `db:"params"`
	Status         JobStatus  `db:"status"`
	Progress       int        `db:"progress"`
	DecisionReason *string    `db:"decision_reason"`
	CreatedAt      time.Time  `db:"created_at"`
	StartedAt      *time.Time `db:"started_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// Agent identifies a worker population jobs can be scoped to.
type Agent struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ManifestFile describes one stored result file. Path is an object store key.
type ManifestFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

// JobResult holds the manifest of a completed job.
type JobResult struct {
	JobID     string    `db:"job_id"`
	Files     Manifest  `db:"files"`
	CreatedAt time.Time `db:"created_at"`
}

// Params is the opaque key/value map passed through to task runners.
// It is stored as a JSON document.
type Params map[string]any

// Value implements driver.Valuer.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Params) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	out := Params{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	*p = out
	return nil
}

// Manifest is the ordered list of result files attached to a completed job.
type Manifest []ManifestFile

// Value implements driver.Valuer.
func (m Manifest) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]ManifestFile(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Manifest) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	var out Manifest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	}
	*m = out
	return nil
}

// Validate checks that every entry points at a stored object.
func (m Manifest) Validate() error {
	for i, f := range m {
		if f.Path == "" {
			return fmt.Errorf("%w: entry %d has no path", ErrInvalidManifest, i)
		}
		if f.SizeBytes < 0 {
			return fmt.Errorf("%w: entry %d has negative size", ErrInvalidManifest, i)
		}
	}
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// TruncateReason cuts a reason to MaxReasonLength characters without
// splitting a multi-byte rune.
func TruncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxReasonLength {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:MaxReasonLength])
}
