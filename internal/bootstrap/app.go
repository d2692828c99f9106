// Package bootstrap wires the content crawler together and runs it.
//
// The bootstrap process follows these phases:
//   - Phase 0: Config & Logger - Load configuration and create logger
//   - Phase 1: Profiling - Start Pyroscope (if enabled)
//   - Phase 2: Database - Connect to PostgreSQL and seed sources
//   - Phase 3: Redis - Connect (if enabled) for the hash cache and source locks
//   - Phase 4: Services - Crawlers, processor, orchestrator, scheduler
//   - Phase 5: Server - Create and start the HTTP server
//   - Phase 6: Run - Wait for interrupt signal or error
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/profiling"
)

// Options are the command line inputs to bootstrap.
type Options struct {
	ConfigPath string
	Debug      bool
	Version    string
}

// App holds every long-lived component. Close releases them.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Metrics  *metrics.Metrics
	Services *Services

	profiler *profiling.Profiler
	janitor  context.CancelFunc
}

// Build runs phases 0 to 4. The returned App owns its connections.
func Build(ctx context.Context, opts Options) (*App, error) {
	app := &App{}

	// Phase 0: config and logger
	cfg, log, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	app.Config, app.Logger = cfg, log

	// Phase 1: profiling
	app.profiler, err = profiling.Start(cfg.Profiling, opts.Version, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}

	// Phase 2: database
	app.DB, err = SetupDatabase(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Phase 3: redis
	app.Redis, err = SetupRedis(ctx, cfg.Redis, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Phase 4: services
	app.Metrics = metrics.New()
	app.Services, err = SetupServices(cfg, log, app.DB, app.Redis, app.Metrics)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup services: %w", err)
	}

	janitorCtx, cancel := context.WithCancel(context.Background())
	app.janitor = cancel
	go app.Services.Jobs.Run(janitorCtx, cfg.Jobs.PurgeInterval)

	return app, nil
}

// Start builds the app, serves the API and blocks until interrupted.
func Start(ctx context.Context, opts Options) error {
	app, err := Build(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	// Phase 5: server
	srv := SetupHTTPServer(app, opts.Version)
	errChan := srv.StartAsync()

	if !app.Config.Scheduler.Disabled {
		app.Services.Scheduler.Start()
	}

	// Phase 6: run
	return RunUntilInterrupt(ctx, app, srv, errChan)
}

// Close stops background work and releases connections. It is safe on a
// partially built App.
func (a *App) Close() {
	if a.janitor != nil {
		a.janitor()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis", logger.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	if err := a.profiler.Stop(); err != nil {
		a.Logger.Warn("Failed to stop profiler", logger.Error(err))
	}
	_ = a.Logger.Sync()
}
