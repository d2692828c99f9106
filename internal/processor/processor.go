// Package processor batches unscored content through the analyzer and
// records quality bundles.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/analysis"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/retry"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// Stage names reported to the progress reporter.
const (
	StageProcessing   = "processing"
	StageReprocessing = "reprocessing"
)

// Analysis outcomes passed to Config.OnAnalysis.
const (
	OutcomeScored = "scored"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

// Store is the part of the content store the processor needs.
type Store interface {
	FindUnprocessed(ctx context.Context, limit int, filter database.ContentFilter) ([]*domain.ContentItem, error)
	FindLowQuality(ctx context.Context, threshold float64, limit int, filter database.ContentFilter) ([]*domain.ContentItem, error)
	SaveQuality(ctx context.Context, id, contentHash string, bundle *domain.QualityScoreBundle) error
}

// Indexer receives every freshly scored item.
type Indexer interface {
	Index(ctx context.Context, item *domain.ContentItem) error
}

// Options selects and scores one batch.
type Options struct {
	BatchSize    int
	Threshold    float64
	ContentTypes []domain.ContentType
	Progress     crawler.ProgressReporter
}

// Config tunes the processor.
type Config struct {
	Retry retry.Config
	// OnAnalysis observes the outcome of each item.
	OnAnalysis func(outcome string)
}

// Processor scores items one at a time.
type Processor struct {
	store    Store
	analyzer analysis.Analyzer
	indexer  Indexer
	cfg      Config
	log      logger.Logger
}

// New returns a processor. indexer may be nil.
func New(store Store, analyzer analysis.Analyzer, indexer Indexer, cfg Config, log logger.Logger) *Processor {
	if cfg.OnAnalysis == nil {
		cfg.OnAnalysis = func(string) {}
	}
	return &Processor{
		store:    store,
		analyzer: analyzer,
		indexer:  indexer,
		cfg:      cfg,
		log:      log.With(logger.Component("processor")),
	}
}

// ProcessBatch scores up to BatchSize unprocessed items. Items below the
// threshold are stored like any other and only counted as such. A transient
// analysis failure leaves the item unprocessed for a later batch.
func (p *Processor) ProcessBatch(ctx context.Context, opts Options) (domain.ProcessStats, error) {
	items, err := p.store.FindUnprocessed(ctx, opts.BatchSize, database.ContentFilter{ContentTypes: opts.ContentTypes})
	if err != nil {
		return domain.ProcessStats{}, fmt.Errorf("select unprocessed: %w", err)
	}
	return p.run(ctx, StageProcessing, items, opts)
}

// ReprocessLowQuality re-scores up to BatchSize processed items whose overall
// score is below Threshold, overwriting their bundles.
func (p *Processor) ReprocessLowQuality(ctx context.Context, opts Options) (domain.ProcessStats, error) {
	items, err := p.store.FindLowQuality(ctx, opts.Threshold, opts.BatchSize, database.ContentFilter{ContentTypes: opts.ContentTypes})
	if err != nil {
		return domain.ProcessStats{}, fmt.Errorf("select low quality: %w", err)
	}
	return p.run(ctx, StageReprocessing, items, opts)
}

func (p *Processor) run(ctx context.Context, stage string, items []*domain.ContentItem, opts Options) (domain.ProcessStats, error) {
	progress := opts.Progress
	if progress == nil {
		progress = crawler.NopProgress
	}

	var stats domain.ProcessStats
	start := time.Now()
	p.log.Info("Processing batch",
		logger.String("stage", stage),
		logger.Int("items", len(items)),
		logger.Float64("threshold", opts.Threshold),
	)
	if len(items) == 0 {
		progress.Report(stage, 1, "No content to process")
		return stats, nil
	}

	for i, item := range items {
		stats.Attempted++
		if err := p.processItem(ctx, item, opts.Threshold, &stats); err != nil {
			if ctx.Err() != nil {
				stats.Attempted--
				return stats, ctx.Err()
			}
			stats.Failed++
			p.log.Warn("Item not scored",
				logger.String("item_id", item.ID),
				logger.String("url", item.CanonicalURL),
				logger.Error(err),
			)
		}
		progress.Report(stage, float64(i+1)/float64(len(items)),
			fmt.Sprintf("Processed %d/%d items (%d scored, %d failed)", i+1, len(items), stats.Scored, stats.Failed))
	}

	p.log.Info("Batch processed",
		logger.String("stage", stage),
		logger.Int("attempted", stats.Attempted),
		logger.Int("scored", stats.Scored),
		logger.Int("below_threshold", stats.BelowThreshold),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", time.Since(start)),
	)
	return stats, nil
}

func (p *Processor) processItem(ctx context.Context, item *domain.ContentItem, threshold float64, stats *domain.ProcessStats) error {
	req := analysis.Request{
		Title:       item.Title,
		Description: item.Description,
		Body:        item.Body,
		ContentType: item.ContentType,
	}

	retryCfg := p.cfg.Retry
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.log.Debug("Retrying analysis",
			logger.String("item_id", item.ID),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}

	var result *analysis.Result
	err := retry.Retry(ctx, retryCfg, func() error {
		var callErr error
		result, callErr = p.analyzer.Analyze(ctx, req)
		return callErr
	})
	if err != nil {
		p.cfg.OnAnalysis(OutcomeFailed)
		return err
	}

	bundle := result.Quality
	if err := p.store.SaveQuality(ctx, item.ID, item.ContentHash, bundle); err != nil {
		if errors.Is(err, database.ErrStaleContent) {
			p.cfg.OnAnalysis(OutcomeStale)
		} else {
			p.cfg.OnAnalysis(OutcomeFailed)
		}
		return err
	}

	p.cfg.OnAnalysis(OutcomeScored)
	stats.Scored++
	if bundle.Overall < threshold {
		stats.BelowThreshold++
	}

	now := time.Now().UTC()
	item.Quality = bundle
	item.Processed = true
	item.ProcessedAt = &now
	item.Services = textutil.Dedupe(item.Services, bundle.Services)

	if p.indexer != nil {
		if err := p.indexer.Index(ctx, item); err != nil {
			p.log.Warn("Search indexing failed", logger.String("item_id", item.ID), logger.Error(err))
		} else {
			stats.Indexed++
		}
	}
	return nil
}
