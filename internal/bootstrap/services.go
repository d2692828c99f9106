package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/analysis"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler/blog"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler/docs"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler/video"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/dedup"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/job"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/processor"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/retry"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/scheduler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/search"
)

// Services are the domain components built on top of the connections.
type Services struct {
	Content      *database.ContentRepository
	Sources      *database.SourceRepository
	Jobs         *job.MemoryStore
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// SetupServices builds every component from the bottom up. rdb may be nil.
func SetupServices(
	cfg *config.Config,
	log logger.Logger,
	db *sqlx.DB,
	rdb *redis.Client,
	m *metrics.Metrics,
) (*Services, error) {
	limiter, err := setupRateLimiter(cfg.RateLimits, m)
	if err != nil {
		return nil, err
	}

	fetcher := httpfetch.New(httpfetch.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.Crawler.RequestTimeout,
		MaxBodySize: int64(cfg.Crawler.MaxBodySize),
	}, limiter, &http.Client{Timeout: cfg.Crawler.RequestTimeout})

	docsCrawler := docs.New(fetcher, docs.Config{
		MaxSitemaps:     cfg.Crawler.MaxSitemaps,
		MaxContentChars: cfg.Crawler.MaxContentChars,
		MaxBodySize:     cfg.Crawler.MaxBodySize,
		RequestTimeout:  cfg.Crawler.RequestTimeout,
	}, log)
	blogCrawler := blog.New(fetcher, blog.Config{MaxContentChars: cfg.Crawler.MaxContentChars}, log)
	videoCrawler := video.New(fetcher, video.Config{
		APIKey:             cfg.YouTube.APIKey,
		BaseURL:            cfg.YouTube.BaseURL,
		TranscriptURL:      cfg.YouTube.TranscriptURL,
		QuotaUnitsPerDay:   cfg.YouTube.QuotaUnitsPerDay,
		MaxTranscriptChars: cfg.Crawler.MaxTranscriptChars,
		ChannelID:          cfg.YouTube.ChannelID,
		Playlists:          cfg.YouTube.Playlists,
	}, log)

	content := database.NewContentRepository(db)
	sourceRepo := database.NewSourceRepository(db)

	var (
		cache dedup.HashCache
		guard job.Guard = job.NewMemoryGuard()
	)
	if rdb != nil {
		cache = dedup.NewRedisHashCache(rdb, cfg.Redis.HashTTL)
		guard = job.NewRedisGuard(rdb, cfg.Jobs.LockTTL)
	}
	deduplicator := dedup.New(content, cache, log)

	proc, err := setupProcessor(cfg, log, content, limiter, m)
	if err != nil {
		return nil, err
	}

	sources, err := cfg.ContentSources()
	if err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}

	jobs := job.NewMemoryStore(cfg.Jobs.Retention, log)
	orch := orchestrator.New(orchestrator.Deps{
		Jobs:      jobs,
		Guard:     guard,
		Crawlers:  crawler.NewRegistry(docsCrawler, blogCrawler, videoCrawler),
		Dedup:     deduplicator,
		Processor: proc,
		Cursors:   sourceRepo,
		Pages:     blogCrawler,
		Videos:    videoCrawler,
		Metrics:   m,
	}, orchestrator.Config{
		Operations:   cfg.Operations,
		Sources:      sources,
		JobTimeout:   cfg.Jobs.JobTimeout,
		AdHocTimeout: cfg.Jobs.AdHocTimeout,
	}, log)

	sched, err := scheduler.New(cfg.Scheduler.DailyUpdate, orch, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Services{
		Content:      content,
		Sources:      sourceRepo,
		Jobs:         jobs,
		Orchestrator: orch,
		Scheduler:    sched,
	}, nil
}

// setupRateLimiter parses the configured budgets. Keys without a budget
// share one request per second.
func setupRateLimiter(raw map[string]string, m *metrics.Metrics) (*ratelimit.Registry, error) {
	budgets := make(map[string]ratelimit.Budget, len(raw))
	for key, value := range raw {
		b, err := ratelimit.ParseBudget(value)
		if err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", key, err)
		}
		budgets[key] = b
	}
	return ratelimit.NewRegistry(ratelimit.PerSecond(1), budgets, ratelimit.WithObserver(m.RateLimitWaited)), nil
}

func setupProcessor(
	cfg *config.Config,
	log logger.Logger,
	content *database.ContentRepository,
	limiter ratelimit.Acquirer,
	m *metrics.Metrics,
) (*processor.Processor, error) {
	var analyzer analysis.Analyzer = analysis.Disabled{}
	if cfg.Anthropic.APIKey != "" {
		analyzer = analysis.NewClaude(analysis.ClaudeConfig{
			APIKey:           cfg.Anthropic.APIKey,
			Model:            cfg.Anthropic.Model,
			BaseURL:          cfg.Anthropic.BaseURL,
			MaxTokens:        cfg.Anthropic.MaxTokens,
			Timeout:          cfg.Anthropic.Timeout,
			BreakerThreshold: cfg.Anthropic.BreakerThreshold,
			BreakerTimeout:   cfg.Anthropic.BreakerTimeout,
		}, limiter, log)
	} else {
		log.Warn("Anthropic API key not set, content processing will fail every item")
	}

	// A typed nil *search.Indexer must not reach the processor.
	var indexer processor.Indexer
	if cfg.Elasticsearch.Enabled() {
		client, err := search.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}
		indexer = search.NewIndexer(client, cfg.Elasticsearch.Index, log)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Anthropic.MaxAttempts
	retryCfg.InitialDelay = cfg.Anthropic.RetryInitialDelay
	retryCfg.MaxDelay = cfg.Anthropic.RetryMaxDelay

	return processor.New(content, analyzer, indexer, processor.Config{
		Retry:      retryCfg,
		OnAnalysis: m.Analysis,
	}, log), nil
}
