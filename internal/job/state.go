package job

import (
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobPending: {
		domain.JobRunning,
		domain.JobFailed, // rejected before any work started
	},
	domain.JobRunning: {
		domain.JobCompleted,
		domain.JobFailed,
	},
	domain.JobCompleted: {},
	domain.JobFailed:    {},
}

// ValidateTransition reports whether a job may move from one status to another.
// Staying in the same non-terminal status is always allowed.
func ValidateTransition(from, to domain.JobStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown job status: %s", from)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: status %s", domain.ErrJobTerminal, from)
	}
	if from == to || slices.Contains(allowed, to) {
		return nil
	}
	return fmt.Errorf("invalid job status transition from %s to %s", from, to)
}
