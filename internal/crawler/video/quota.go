package video

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Quota tracks API units spent in the current UTC day. The counter resets at
// midnight UTC, matching the upstream quota window.
type Quota struct {
	mu        sync.Mutex
	limit     int
	used      int
	day       string
	exhausted bool
	now       func() time.Time
}

// NewQuota returns a counter allowing limit units per day. A non-positive
// limit disables local accounting.
func NewQuota(limit int) *Quota {
	return &Quota{limit: limit, now: time.Now}
}

// Spend reserves units, returning ErrQuotaExceeded when the day's budget is gone.
func (q *Quota) Spend(units int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.roll()
	if q.exhausted {
		return fmt.Errorf("%w: daily video api quota exhausted", domain.ErrQuotaExceeded)
	}
	if q.limit > 0 && q.used+units > q.limit {
		q.exhausted = true
		return fmt.Errorf("%w: %d of %d units used today", domain.ErrQuotaExceeded, q.used, q.limit)
	}
	q.used += units
	return nil
}

// Exhaust marks the budget spent after the upstream reported a quota error.
func (q *Quota) Exhaust() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	q.exhausted = true
}

// Used returns units spent today.
func (q *Quota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll()
	return q.used
}

func (q *Quota) roll() {
	day := q.now().UTC().Format(time.DateOnly)
	if day != q.day {
		q.day = day
		q.used = 0
		q.exhausted = false
	}
}
