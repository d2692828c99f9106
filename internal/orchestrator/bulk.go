package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/processor"
)

const (
	// crawlShare is the end of the source stages when processing follows.
	crawlShare = 80
	// reportEvery throttles in-stage progress updates.
	reportEvery = 10
)

type sourceStage struct {
	src  domain.ContentSource
	plan config.CrawlPlan
}

// runPlan crawls every active source the plan enables, one at a time, then
// scores new content.
func (o *Orchestrator) runPlan(ctx context.Context, ex *execution, plan config.OperationPlan) error {
	var stages []sourceStage
	for _, src := range o.Sources(ctx) {
		p := plan.For(src.Type)
		if !src.Active || p.Disabled {
			continue
		}
		stages = append(stages, sourceStage{src: src, plan: p})
	}

	crawlSpan := fullSpan
	if !plan.Processing.Disabled {
		crawlSpan = span{0, crawlShare}
	}

	if len(stages) > 0 {
		for i, sp := range crawlSpan.split(len(stages)) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := o.crawlSource(ctx, ex, stages[i].src, stages[i].plan, sp); err != nil {
				return err
			}
		}
	}

	if plan.Processing.Disabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.runProcessing(ctx, ex, plan.Processing, false, span{crawlSpan.to, 100})
}

// crawlSource runs one source under its guard. Item failures are counted and
// skipped; only cancellation is returned. A busy source is skipped.
func (o *Orchestrator) crawlSource(ctx context.Context, ex *execution, src domain.ContentSource, plan config.CrawlPlan, sp span) error {
	log := ex.log.With(logger.String("source", src.ID))
	var stats domain.CrawlStats

	release, err := o.deps.Guard.TryAcquire(ctx, src.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSourceBusy) {
			stats.Skipped = "busy"
			log.Info("Source busy, skipping")
		} else {
			stats.Skipped = "guard unavailable"
			stats.Error = err.Error()
			log.Warn("Source guard failed, skipping", logger.Error(err))
		}
		ex.recordSource(src.ID, stats)
		ex.report(sp.at(1), src.ID, fmt.Sprintf("%s skipped (%s)", src.Name, stats.Skipped))
		return nil
	}
	defer release()

	c, err := o.deps.Crawlers.For(src.Type)
	if err != nil {
		stats.Error = err.Error()
		ex.recordSource(src.ID, stats)
		log.Error("No crawler for source", logger.Error(err))
		return nil
	}

	ctx, ts := sourceSpan(ctx, src, plan.Limit)
	var spanErr error
	defer func() {
		ts.SetAttributes(crawlAttributes(stats)...)
		endSpan(ts, spanErr)
	}()

	since := plan.Since(ex.started)
	scoped := src.WithScope(plan.Scope())
	ex.report(sp.at(0), src.ID, "crawling "+src.Name)
	log.Info("Crawling source", logger.Time("since", since), logger.Int("limit", plan.Limit))

	var terminal error
	for cand, itemErr := range c.Crawl(ctx, scoped, since, plan.Limit) {
		if itemErr != nil {
			if crawler.IsTerminal(itemErr) {
				terminal = itemErr
				break
			}
			stats.Attempted++
			stats.Failed++
			o.deps.Metrics.CrawlItem(src.ID, "failed")
			log.Warn("Candidate failed", logger.Error(itemErr))
		} else if err := o.store(ctx, src.ID, cand, &stats); err != nil {
			terminal = err
			break
		}

		if stats.Attempted%reportEvery == 0 {
			ex.recordSource(src.ID, stats)
			ex.report(sp.at(fraction(stats.Attempted, plan.Limit)), src.ID,
				fmt.Sprintf("crawling %s: %d items", src.Name, stats.Attempted))
		}
	}

	if terminal != nil {
		stats.Error = terminal.Error()
		spanErr = terminal
	}
	ex.recordSource(src.ID, stats)

	if ctxErr := ctx.Err(); ctxErr != nil {
		spanErr = ctxErr
		return ctxErr
	}

	if terminal == nil && o.deps.Cursors != nil {
		if err := o.deps.Cursors.AdvanceCursor(ctx, src.ID, ex.started); err != nil {
			log.Warn("Failed to advance source cursor", logger.Error(err))
		}
	}
	if terminal != nil {
		log.Warn("Source crawl stopped early", logger.Error(terminal))
	}

	ex.report(sp.at(1), src.ID, fmt.Sprintf("%s: %d new, %d updated, %d duplicates, %d failed",
		src.Name, stats.Inserted, stats.Updated, stats.Duplicates, stats.Failed))
	return nil
}

// store upserts one candidate and counts the outcome. Only a cancelled
// context is returned.
func (o *Orchestrator) store(ctx context.Context, sourceID string, cand domain.Candidate, stats *domain.CrawlStats) error {
	stats.Attempted++
	outcome, _, err := o.deps.Dedup.Upsert(ctx, cand)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stats.Attempted--
			return ctxErr
		}
		stats.Failed++
		o.deps.Metrics.CrawlItem(sourceID, "failed")
		logger.FromContext(ctx).Warn("Failed to store candidate",
			logger.String("url", cand.URL), logger.Error(err))
		return nil
	}

	switch outcome {
	case domain.OutcomeInserted:
		stats.Inserted++
		o.deps.Metrics.CrawlItem(sourceID, "inserted")
	case domain.OutcomeUpdated:
		stats.Updated++
		o.deps.Metrics.CrawlItem(sourceID, "updated")
	default:
		stats.Duplicates++
		o.deps.Metrics.CrawlItem(sourceID, "duplicate")
	}
	return nil
}

func fraction(done, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(done) / float64(limit)
}

// runProcessing scores a batch, mapping the processor's progress into sp.
func (o *Orchestrator) runProcessing(ctx context.Context, ex *execution, plan config.ProcessPlan, reprocess bool, sp span) error {
	if plan.Disabled {
		return nil
	}

	types := make([]domain.ContentType, 0, len(plan.ContentTypes))
	for _, t := range plan.ContentTypes {
		types = append(types, domain.ContentType(t))
	}

	opts := processor.Options{
		BatchSize:    plan.BatchSize,
		Threshold:    plan.Threshold,
		ContentTypes: types,
		Progress: crawler.ProgressFunc(func(stage string, f float64, message string) {
			ex.report(sp.at(f), stage, message)
		}),
	}

	stage := processor.StageProcessing
	run := o.deps.Processor.ProcessBatch
	if reprocess {
		stage = processor.StageReprocessing
		run = o.deps.Processor.ReprocessLowQuality
	}
	ex.report(sp.at(0), stage, "scoring content")

	stats, err := run(ctx, opts)
	ex.recordProcessing(stats)
	if err != nil {
		return err
	}

	ex.report(sp.at(1), stage, fmt.Sprintf("scored %d of %d items, %d below threshold, %d failed",
		stats.Scored, stats.Attempted, stats.BelowThreshold, stats.Failed))
	return nil
}
