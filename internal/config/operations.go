package config

import (
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// CrawlPlan scopes one source type within an operation. Empty lists fall
// back to the source's own scope.
type CrawlPlan struct {
	Disabled           bool          `yaml:"disabled"`
	Lookback           time.Duration `yaml:"lookback"`
	Limit              int           `yaml:"limit"`
	Services           []string      `yaml:"services"`
	Categories         []string      `yaml:"categories"`
	Playlists          []string      `yaml:"playlists"`
	FetchFullContent   bool          `yaml:"fetch_full_content"`
	// FetchTranscripts defaults to true when unset.
	FetchTranscripts   *bool         `yaml:"fetch_transcripts"`
	PerCollectionLimit int           `yaml:"per_collection_limit"`
}

// Scope returns the plan as source options.
func (p CrawlPlan) Scope() domain.SourceOptions {
	return domain.SourceOptions{
		Services:           p.Services,
		Categories:         p.Categories,
		Playlists:          p.Playlists,
		FetchFullContent:   p.FetchFullContent,
		FetchTranscripts:   p.FetchTranscripts != nil && *p.FetchTranscripts,
		PerCollectionLimit: p.PerCollectionLimit,
	}
}

// Since returns the incremental cutoff for a run starting at now. A zero
// lookback crawls all time.
func (p CrawlPlan) Since(now time.Time) time.Time {
	if p.Lookback <= 0 {
		return time.Time{}
	}
	return now.Add(-p.Lookback)
}

// ProcessPlan configures a quality-processing stage.
type ProcessPlan struct {
	Disabled     bool     `yaml:"disabled"`
	BatchSize    int      `yaml:"batch_size"`
	Threshold    float64  `yaml:"threshold"`
	ContentTypes []string `yaml:"content_types"`
}

// OperationPlan is the crawl and processing plan of a bulk operation.
type OperationPlan struct {
	Blog       CrawlPlan   `yaml:"blog"`
	Video      CrawlPlan   `yaml:"video"`
	Docs       CrawlPlan   `yaml:"docs"`
	Processing ProcessPlan `yaml:"processing"`
}

// For returns the crawl plan of a source type.
func (p *OperationPlan) For(t domain.SourceType) CrawlPlan {
	switch t {
	case domain.SourceBlog:
		return p.Blog
	case domain.SourceVideo:
		return p.Video
	default:
		return p.Docs
	}
}

// OperationsConfig holds the plan of every operation.
type OperationsConfig struct {
	Daily     OperationPlan `yaml:"daily_update"`
	Full      OperationPlan `yaml:"full_crawl"`
	Process   ProcessPlan   `yaml:"process_content"`
	Reprocess ProcessPlan   `yaml:"reprocess_low_quality"`
}

const defaultThreshold = 0.5

func (c *OperationsConfig) SetDefaults() {
	d := &c.Daily
	setCrawlDefaults(&d.Blog, 7*24*time.Hour, 100)
	if len(d.Blog.Categories) == 0 {
		d.Blog.Categories = []string{"devops", "architecture", "containers", "compute"}
	}
	setCrawlDefaults(&d.Video, 14*24*time.Hour, 100)
	if len(d.Video.Playlists) == 0 {
		d.Video.Playlists = []string{"aws-devops", "aws-tutorials"}
	}
	if d.Video.PerCollectionLimit == 0 {
		d.Video.PerCollectionLimit = 20
	}
	defaultTrue(&d.Video.FetchTranscripts)
	setCrawlDefaults(&d.Docs, 7*24*time.Hour, 50)
	if len(d.Docs.Services) == 0 {
		d.Docs.Services = []string{"ec2", "s3", "lambda", "ecs", "cloudformation"}
	}
	setProcessDefaults(&d.Processing, 50)

	// Full crawls run with a zero lookback: all time.
	f := &c.Full
	for _, p := range []*CrawlPlan{&f.Blog, &f.Video, &f.Docs} {
		if p.Limit == 0 {
			p.Limit = 500
		}
	}
	defaultTrue(&f.Video.FetchTranscripts)
	setProcessDefaults(&f.Processing, 200)

	setProcessDefaults(&c.Process, 100)
	setProcessDefaults(&c.Reprocess, 100)
}

func setCrawlDefaults(p *CrawlPlan, lookback time.Duration, limit int) {
	if p.Lookback == 0 {
		p.Lookback = lookback
	}
	if p.Limit == 0 {
		p.Limit = limit
	}
}

func defaultTrue(b **bool) {
	if *b == nil {
		v := true
		*b = &v
	}
}

func setProcessDefaults(p *ProcessPlan, batch int) {
	if p.BatchSize == 0 {
		p.BatchSize = batch
	}
	if p.Threshold == 0 {
		p.Threshold = defaultThreshold
	}
}

func (c *OperationsConfig) Validate() error {
	return errors.Join(
		unitInterval("operations.daily_update.processing.threshold", c.Daily.Processing.Threshold),
		unitInterval("operations.full_crawl.processing.threshold", c.Full.Processing.Threshold),
		unitInterval("operations.process_content.threshold", c.Process.Threshold),
		unitInterval("operations.reprocess_low_quality.threshold", c.Reprocess.Threshold),
	)
}
