// Package job tracks in-flight and recently finished jobs and guards
// sources against concurrent crawls.
package job

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

const maxProgress = 100

// Store is the process-wide registry of jobs. Every returned job is a copy.
type Store interface {
	Create(op domain.Operation) *domain.CrawlJob
	Get(id string) (*domain.CrawlJob, error)
	// Update applies fn to a working copy and commits it only when the
	// resulting status transition is valid.
	Update(id string, fn func(*domain.CrawlJob)) (*domain.CrawlJob, error)
	List() []*domain.CrawlJob
	Purge(now time.Time) int
}

// MemoryStore keeps jobs in memory and forgets terminal jobs once their
// retention has elapsed.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.CrawlJob
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(retention time.Duration, log logger.Logger, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:      make(map[string]*domain.CrawlJob),
		retention: retention,
		now:       time.Now,
		log:       log.With(logger.Component("job_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a pending job.
func (s *MemoryStore) Create(op domain.Operation) *domain.CrawlJob {
	j := &domain.CrawlJob{
		ID:        uuid.New().String(),
		Operation: op,
		Status:    domain.JobPending,
		Message:   "queued",
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	return j.Clone()
}

// Get returns a snapshot of the job.
func (s *MemoryStore) Get(id string) (*domain.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return j.Clone(), nil
}

// Update mutates the job through fn. Progress is clamped so it never
// decreases and never exceeds 100. Entering a terminal status stamps
// FinishedAt; entering running stamps StartedAt.
func (s *MemoryStore) Update(id string, fn func(*domain.CrawlJob)) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if cur.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, id, cur.Status)
	}

	next := cur.Clone()
	fn(next)

	if err := ValidateTransition(cur.Status, next.Status); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	next.ID, next.Operation, next.CreatedAt = cur.ID, cur.Operation, cur.CreatedAt
	next.Progress = min(max(next.Progress, cur.Progress, 0), maxProgress)

	now := s.now()
	if next.Status == domain.JobRunning && next.StartedAt == nil {
		next.StartedAt = &now
	}
	if next.Status.Terminal() {
		if next.Status == domain.JobCompleted {
			next.Progress = maxProgress
		}
		next.FinishedAt = &now
	}

	s.jobs[id] = next
	return next.Clone(), nil
}

// List returns every retained job, newest first.
func (s *MemoryStore) List() []*domain.CrawlJob {
	s.mu.RLock()
	out := make([]*domain.CrawlJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.CrawlJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Purge removes terminal jobs whose retention ended at or before now.
func (s *MemoryStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, j := range s.jobs {
		if j.FinishedAt == nil || !j.Status.Terminal() {
			continue
		}
		if !now.Before(j.FinishedAt.Add(s.retention)) {
			delete(s.jobs, id)
			purged++
		}
	}
	return purged
}

// Run purges expired jobs every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Purge(s.now()); n > 0 {
				s.log.Debug("Purged finished jobs", logger.Int("count", n))
			}
		}
	}
}
