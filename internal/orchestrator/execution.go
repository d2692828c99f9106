package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// span is the slice of the 0-100 progress range owned by one stage.
type span struct{ from, to float64 }

var fullSpan = span{0, 100}

func (s span) at(fraction float64) int {
	fraction = min(max(fraction, 0), 1)
	return int(s.from + (s.to-s.from)*fraction)
}

// split divides s into n equal consecutive parts.
func (s span) split(n int) []span {
	out := make([]span, n)
	width := (s.to - s.from) / float64(n)
	for i := range out {
		out[i] = span{s.from + width*float64(i), s.from + width*float64(i+1)}
	}
	return out
}

// execution is the mutable state of one running job. Only the goroutine
// driving the job touches it.
type execution struct {
	o       *Orchestrator
	jobID   string
	op      domain.Operation
	started time.Time
	log     logger.Logger

	mu      sync.Mutex
	stats   *domain.JobStats
	results []domain.Candidate
}

// report publishes progress, the active stage and a snapshot of the stats.
func (ex *execution) report(progress int, stage, message string) {
	ex.mu.Lock()
	stats := ex.stats.Clone()
	ex.mu.Unlock()

	_, err := ex.o.deps.Jobs.Update(ex.jobID, func(j *domain.CrawlJob) {
		j.Progress = progress
		j.Stage = stage
		j.Message = message
		j.Stats = stats
	})
	if err != nil {
		ex.log.Debug("Progress update rejected", logger.Error(err))
	}
}

func (ex *execution) recordSource(id string, cs domain.CrawlStats) {
	ex.mu.Lock()
	ex.stats.RecordSource(id, cs)
	ex.mu.Unlock()
}

func (ex *execution) recordProcessing(ps domain.ProcessStats) {
	ex.mu.Lock()
	ex.stats.RecordProcessing(ps)
	ex.mu.Unlock()
}

func (o *Orchestrator) launch(op domain.Operation, timeout time.Duration, body func(context.Context, *execution) error) (*domain.CrawlJob, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}

	j := o.deps.Jobs.Create(op)

	ctx, cancel := context.WithCancelCause(o.base)
	a := &activeJob{op: op, cancel: cancel, done: make(chan struct{})}
	o.active[j.ID] = a
	o.wg.Add(1)
	o.mu.Unlock()

	go o.execute(ctx, j.ID, op, timeout, a, body)

	o.log.Info("Job accepted", logger.String("job_id", j.ID), logger.String("operation", string(op)))
	return j, nil
}

func (o *Orchestrator) execute(
	parent context.Context,
	id string,
	op domain.Operation,
	timeout time.Duration,
	a *activeJob,
	body func(context.Context, *execution) error,
) {
	defer o.wg.Done()
	defer close(a.done)
	defer func() {
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
		a.cancel(nil)
	}()

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(parent, timeout,
			fmt.Errorf("%w: job exceeded %s", domain.ErrTimeout, textutil.FormatDuration(timeout)))
		defer cancel()
	}

	ex := &execution{
		o:       o,
		jobID:   id,
		op:      op,
		started: o.now(),
		log:     o.log.With(logger.String("job_id", id), logger.String("operation", string(op))),
		stats:   domain.NewJobStats(),
	}
	ctx = logger.WithContext(ctx, ex.log)
	ctx, ts := jobSpan(ctx, id, op)

	if _, err := o.deps.Jobs.Update(id, func(j *domain.CrawlJob) {
		j.Status = domain.JobRunning
		j.Message = "starting"
	}); err != nil {
		ex.log.Error("Failed to start job", logger.Error(err))
		o.reject(ex, err)
		endSpan(ts, err)
		return
	}
	o.deps.Metrics.JobStarted(string(op))

	err := safely(ctx, ex, body)
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	o.finish(ex, err)
	endSpan(ts, err)
}

// reject moves a job that never started straight from pending to failed.
func (o *Orchestrator) reject(ex *execution, cause error) {
	_, err := o.deps.Jobs.Update(ex.jobID, func(j *domain.CrawlJob) {
		j.Status = domain.JobFailed
		j.Error = cause.Error()
		j.Message = "failed to start"
	})
	if err != nil {
		ex.log.Error("Failed to record rejected job", logger.Error(err))
		return
	}
	o.deps.Metrics.JobFinished(string(ex.op), string(domain.JobFailed), 0)
}

// safely runs body, converting a panic into ErrInternal.
func safely(ctx context.Context, ex *execution, body func(context.Context, *execution) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ex.log.Error("Job panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", domain.ErrInternal, r)
		}
	}()
	return body(ctx, ex)
}

func (o *Orchestrator) finish(ex *execution, runErr error) {
	ex.mu.Lock()
	stats := ex.stats.Clone()
	results := ex.results
	ex.mu.Unlock()

	final, err := o.deps.Jobs.Update(ex.jobID, func(j *domain.CrawlJob) {
		j.Stats = stats
		j.Result = results
		j.Stage = ""
		if runErr == nil {
			j.Status = domain.JobCompleted
			j.Message = "completed"
			return
		}
		j.Status = domain.JobFailed
		j.Error = runErr.Error()
		j.Message = failureMessage(runErr)
	})
	if err != nil {
		ex.log.Error("Failed to record job result", logger.Error(err))
		return
	}

	elapsed := final.Duration(o.now())
	o.deps.Metrics.JobFinished(string(ex.op), string(final.Status), elapsed)

	fields := []logger.Field{
		logger.String("status", string(final.Status)),
		logger.String("duration", textutil.FormatDuration(elapsed)),
		logger.Int("total_processed", stats.Total.TotalProcessed),
		logger.Int("successful", stats.Total.Successful),
		logger.Int("failed", stats.Total.Failed),
		logger.Int("duplicates", stats.Total.Duplicates),
	}
	if runErr != nil {
		ex.log.Warn("Job failed", append(fields, logger.Error(runErr))...)
		return
	}
	ex.log.Info("Job completed", fields...)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, errAborted):
		return errAborted.Error()
	case errors.Is(err, ErrShuttingDown):
		return "interrupted by shutdown"
	case errors.Is(err, domain.ErrTimeout):
		return "timed out"
	default:
		return "failed"
	}
}
