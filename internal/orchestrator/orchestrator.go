// Package orchestrator runs crawl and processing operations as background
// jobs and reports their progress through the job store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/job"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/processor"
)

var (
	// ErrShuttingDown rejects new jobs once Shutdown has been called.
	ErrShuttingDown = errors.New("orchestrator shutting down")

	errAborted = errors.New("aborted by operator")
)

// Deduplicator stores candidates keyed by canonical URL.
type Deduplicator interface {
	Upsert(ctx context.Context, cand domain.Candidate) (domain.UpsertOutcome, *domain.ContentItem, error)
}

// Processor scores stored content.
type Processor interface {
	ProcessBatch(ctx context.Context, opts processor.Options) (domain.ProcessStats, error)
	ReprocessLowQuality(ctx context.Context, opts processor.Options) (domain.ProcessStats, error)
}

// CursorStore persists per-source crawl cursors.
type CursorStore interface {
	ListActive(ctx context.Context) ([]domain.ContentSource, error)
	AdvanceCursor(ctx context.Context, id string, ts time.Time) error
}

// PageCrawler fetches a single blog post.
type PageCrawler interface {
	CrawlURL(ctx context.Context, src domain.ContentSource, url string) (domain.Candidate, error)
}

// VideoCrawler fetches a single video or one playlist.
type VideoCrawler interface {
	CrawlVideo(ctx context.Context, src domain.ContentSource, url string) (domain.Candidate, error)
	CrawlPlaylist(ctx context.Context, src domain.ContentSource, url string, limit int) (iter.Seq2[domain.Candidate, error], error)
}

// Recorder observes job and item outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	JobStarted(operation string)
	JobFinished(operation, status string, d time.Duration)
	CrawlItem(source, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(string)                         {}
func (nopRecorder) JobFinished(string, string, time.Duration) {}
func (nopRecorder) CrawlItem(string, string)                  {}

// Config holds the operation plans and job limits.
type Config struct {
	Operations config.OperationsConfig
	// Sources are the configured origins; cursors are read from CursorStore.
	Sources      []domain.ContentSource
	JobTimeout   time.Duration
	AdHocTimeout time.Duration
	// PlaylistLimit caps ad-hoc playlist crawls without an explicit limit.
	PlaylistLimit int
}

// Deps are the collaborators of the orchestrator. Cursors, Pages, Videos
// and Metrics may be nil.
type Deps struct {
	Jobs      job.Store
	Guard     job.Guard
	Crawlers  *crawler.Registry
	Dedup     Deduplicator
	Processor Processor
	Cursors   CursorStore
	Pages     PageCrawler
	Videos    VideoCrawler
	Metrics   Recorder
}

type activeJob struct {
	op     domain.Operation
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Orchestrator owns the lifecycle of every job it starts.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  logger.Logger
	now  func() time.Time

	base     context.Context
	stopBase context.CancelCauseFunc

	mu     sync.Mutex
	active map[string]*activeJob
	closed bool
	wg     sync.WaitGroup
}

const defaultPlaylistLimit = 50

// New returns an orchestrator ready to accept jobs.
func New(deps Deps, cfg Config, log logger.Logger) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = defaultPlaylistLimit
	}
	base, stop := context.WithCancelCause(context.Background())
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		log:      log.With(logger.Component("orchestrator")),
		now:      time.Now,
		base:     base,
		stopBase: stop,
		active:   make(map[string]*activeJob),
	}
}

// Start accepts a bulk operation by name and returns immediately.
func (o *Orchestrator) Start(operation string) (*domain.CrawlJob, error) {
	op, err := domain.ParseOperation(operation)
	if err != nil {
		return nil, err
	}

	var body func(context.Context, *execution) error
	switch op {
	case domain.OpDailyUpdate:
		plan := o.cfg.Operations.Daily
		body = func(ctx context.Context, ex *execution) error { return o.runPlan(ctx, ex, plan) }
	case domain.OpFullCrawl:
		plan := o.cfg.Operations.Full
		body = func(ctx context.Context, ex *execution) error { return o.runPlan(ctx, ex, plan) }
	case domain.OpProcessContent:
		plan := o.cfg.Operations.Process
		body = func(ctx context.Context, ex *execution) error {
			return o.runProcessing(ctx, ex, plan, false, fullSpan)
		}
	case domain.OpReprocess:
		plan := o.cfg.Operations.Reprocess
		body = func(ctx context.Context, ex *execution) error {
			return o.runProcessing(ctx, ex, plan, true, fullSpan)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOperation, operation)
	}

	return o.launch(op, o.cfg.JobTimeout, body)
}

// GetStatus returns a snapshot of the job without waiting on it.
func (o *Orchestrator) GetStatus(id string) (*domain.CrawlJob, error) {
	return o.deps.Jobs.Get(id)
}

// List returns every retained job, newest first.
func (o *Orchestrator) List() []*domain.CrawlJob {
	return o.deps.Jobs.List()
}

// Running reports whether a job of op is in flight.
func (o *Orchestrator) Running(op domain.Operation) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.active {
		if a.op == op {
			return true
		}
	}
	return false
}

// Abort cancels a running job. The job ends failed with "aborted by operator".
func (o *Orchestrator) Abort(id string) error {
	o.mu.Lock()
	a, ok := o.active[id]
	o.mu.Unlock()

	if !ok {
		j, err := o.deps.Jobs.Get(id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, id, j.Status)
	}
	a.cancel(errAborted)
	return nil
}

// Wait blocks until the job reaches a terminal status or ctx is done, and
// returns the final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*domain.CrawlJob, error) {
	o.mu.Lock()
	a, ok := o.active[id]
	o.mu.Unlock()

	if ok {
		select {
		case <-a.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.deps.Jobs.Get(id)
}

// Shutdown stops accepting jobs, cancels the running ones and waits for them
// to record their final status.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.stopBase(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

// Sources returns the configured sources with their stored cursors.
func (o *Orchestrator) Sources(ctx context.Context) []domain.ContentSource {
	out := make([]domain.ContentSource, len(o.cfg.Sources))
	copy(out, o.cfg.Sources)
	if o.deps.Cursors == nil {
		return out
	}

	stored, err := o.deps.Cursors.ListActive(ctx)
	if err != nil {
		o.log.Warn("Failed to load source cursors", logger.Error(err))
		return out
	}
	cursors := make(map[string]*time.Time, len(stored))
	for _, s := range stored {
		cursors[s.ID] = s.LastCrawled
	}
	for i := range out {
		if ts, ok := cursors[out[i].ID]; ok {
			out[i].LastCrawled = ts
		}
	}
	return out
}
