package metrics

import (
	"sync"
)

// Metrics tracks job dispatch counters for one process.
type Metrics struct {
	mu sync.RWMutex

	jobsCreated     int64
	jobsAccepted    int64
	jobsRejected    int64
	jobsFailed      int64
	jobsCompleted   int64
	claimConflicts  int64
	uploadRollbacks int64
	orphanedObjects int64
	jobsProcessed   int64
	jobsSkipped     int64
	pollErrors      int64
	filesUploaded   int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) add(counter *int64, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += n
}

// IncrementJobsCreated counts a job inserted in pending.
func (m *Metrics) IncrementJobsCreated() {
	if m == nil {
		return
	}
	m.add(&m.jobsCreated, 1)
}

// IncrementTransition counts a successful status update by target status.
func (m *Metrics) IncrementTransition(status string) {
	if m == nil {
		return
	}
	switch status {
	case "accepted":
		m.add(&m.jobsAccepted, 1)
	case "rejected":
		m.add(&m.jobsRejected, 1)
	case "failed":
		m.add(&m.jobsFailed, 1)
	}
}

// IncrementJobsCompleted counts a committed completion and its files.
func (m *Metrics) IncrementJobsCompleted(files int) {
	if m == nil {
		return
	}
	m.add(&m.jobsCompleted, 1)
	m.add(&m.filesUploaded, int64(files))
}

// IncrementClaimConflicts counts lost claim races and stale transitions.
func (m *Metrics) IncrementClaimConflicts() {
	if m == nil {
		return
	}
	m.add(&m.claimConflicts, 1)
}

// IncrementUploadRollbacks counts completions that had to delete uploaded objects.
func (m *Metrics) IncrementUploadRollbacks() {
	if m == nil {
		return
	}
	m.add(&m.uploadRollbacks, 1)
}

// IncrementOrphanedObjects counts objects a rollback failed to delete.
func (m *Metrics) IncrementOrphanedObjects() {
	if m == nil {
		return
	}
	m.add(&m.orphanedObjects, 1)
}

// IncrementJobsProcessed counts jobs a worker claimed and ran to a terminal report.
func (m *Metrics) IncrementJobsProcessed() {
	if m == nil {
		return
	}
	m.add(&m.jobsProcessed, 1)
}

// IncrementJobsSkipped counts jobs a worker lost to another claimant.
func (m *Metrics) IncrementJobsSkipped() {
	if m == nil {
		return
	}
	m.add(&m.jobsSkipped, 1)
}

// IncrementPollErrors counts poll cycles aborted by an unreachable API.
func (m *Metrics) IncrementPollErrors() {
	if m == nil {
		return
	}
	m.add(&m.pollErrors, 1)
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"jobs_created":     m.jobsCreated,
		"jobs_accepted":    m.jobsAccepted,
		"jobs_rejected":    m.jobsRejected,
		"jobs_failed":      m.jobsFailed,
		"jobs_completed":   m.jobsCompleted,
		"claim_conflicts":  m.claimConflicts,
		"upload_rollbacks": m.uploadRollbacks,
		"orphaned_objects": m.orphanedObjects,
		"jobs_processed":   m.jobsProcessed,
		"jobs_skipped":     m.jobsSkipped,
		"poll_errors":      m.pollErrors,
		"files_uploaded":   m.filesUploaded,
	}
}
