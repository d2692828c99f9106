// Package domain holds the types shared by crawlers, the content store,
// the quality processor and the job orchestrator.
package domain

import "errors"

// Error taxonomy. Callers compare with errors.Is; wrapped errors carry detail.
var (
	// ErrInvalidOperation rejects an unrecognized operation name or bad request. Not retried.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNotFound is returned for unknown or purged jobs and missing resources.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited marks upstream throttling. Analysis calls retry it with backoff.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded marks an exhausted upstream quota. It stops the current run for that source.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUpstreamUnavailable covers network and parse failures on a single candidate.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTimeout is returned when an ad-hoc crawl or a whole job exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInternal is an unexpected failure. Jobs hitting it are marked failed.
	ErrInternal = errors.New("internal failure")
	// ErrSourceBusy is returned when another job holds the crawl guard for a source.
	ErrSourceBusy = errors.New("source busy")
	// ErrInvalidURL rejects malformed ad-hoc crawl targets.
	ErrInvalidURL = errors.New("invalid url")
	// ErrJobTerminal is returned when mutating a job that already finished.
	ErrJobTerminal = errors.New("job already finished")
)

// IsRetryable reports whether err is a transient upstream condition worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout)
}
