// Package crawler defines the source crawler contract and the helpers shared
// by the docs, blog and video variants.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Crawler turns one source into a lazy, finite sequence of candidates.
//
// A pair with a non-nil error is a failure: the candidate is zero. Consumers
// count the failure and keep ranging unless IsTerminal(err) reports true,
// in which case the crawler yields nothing more. A zero since crawls all
// time; limit <= 0 means no cap.
type Crawler interface {
	Type() domain.SourceType
	Crawl(ctx context.Context, src domain.ContentSource, since time.Time, limit int) iter.Seq2[domain.Candidate, error]
}

// ItemError is a non-fatal failure on one candidate.
type ItemError struct {
	URL string
	Err error
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s: %v", e.URL, e.Err) }
func (e *ItemError) Unwrap() error { return e.Err }

// ItemFailure wraps err as a per-item failure for url.
func ItemFailure(url string, err error) error {
	return &ItemError{URL: url, Err: err}
}

// IsTerminal reports whether err ends the crawl of the current source.
func IsTerminal(err error) bool {
	return errors.Is(err, domain.ErrQuotaExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Include reports whether a candidate revised at ts falls inside the
// incremental window. Unknown timestamps are always included.
func Include(ts *time.Time, since time.Time) bool {
	if since.IsZero() || ts == nil {
		return true
	}
	return !ts.Before(since)
}

// ProgressReporter receives structured progress events from a running stage.
// Fraction is within [0,1] of the current stage.
type ProgressReporter interface {
	Report(stage string, fraction float64, message string)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(stage string, fraction float64, message string)

func (f ProgressFunc) Report(stage string, fraction float64, message string) {
	f(stage, fraction, message)
}

// NopProgress discards events.
var NopProgress ProgressReporter = ProgressFunc(func(string, float64, string) {})
