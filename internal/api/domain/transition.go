package domain

// allowedTransitions is the successor table of the generic status update.
// completed is reachable only through job completion and has no entry here.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:  {JobStatusAccepted, JobStatusRejected},
	JobStatusAccepted: {JobStatusRunning},
	JobStatusRunning:  {JobStatusFailed},
}

// IsValidTransition reports whether a job in current may move to requested
// through a status update.
func IsValidTransition(current, requested JobStatus) bool {
	for _, next := range allowedTransitions[current] {
		if next == requested {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s JobStatus) bool {
	switch s {
	case JobStatusRejected, JobStatusFailed, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// AcceptsProgress reports whether a progress value may accompany a move to s.
func AcceptsProgress(s JobStatus) bool {
	return s == JobStatusRunning
}

// AcceptsReason reports whether a decision reason may accompany a move to s.
func AcceptsReason(s JobStatus) bool {
	return s == JobStatusRejected || s == JobStatusFailed
}
