// Package scheduler triggers the periodic daily update.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

// Starter is the part of the orchestrator the scheduler drives.
type Starter interface {
	Start(operation string) (*domain.CrawlJob, error)
	Running(op domain.Operation) bool
}

// Scheduler runs an operation on a cron schedule, skipping ticks while the
// previous run of that operation is still going.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	log     logger.Logger
}

// New parses spec (seconds optional) and registers the daily update.
func New(spec string, starter Starter, log logger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		starter: starter,
		log:     log.With(logger.Component("scheduler")),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Trigger(domain.OpDailyUpdate) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Trigger starts op unless a run of it is in flight. It reports whether a
// job was started.
func (s *Scheduler) Trigger(op domain.Operation) bool {
	if s.starter.Running(op) {
		s.log.Warn("Previous run still in progress, skipping tick", logger.String("operation", string(op)))
		return false
	}
	j, err := s.starter.Start(string(op))
	if err != nil {
		s.log.Error("Scheduled job rejected", logger.String("operation", string(op)), logger.Error(err))
		return false
	}
	s.log.Info("Scheduled job started", logger.String("operation", string(op)), logger.String("job_id", j.ID))
	return true
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("entries", len(s.cron.Entries())))
}

// Stop halts the ticker and returns once any tick in progress has returned.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}
