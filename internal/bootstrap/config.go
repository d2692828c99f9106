package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

// LoadConfig loads and validates configuration, then builds the logger.
// Debug forces debug logging and gin debug mode.
func LoadConfig(opts Options) (*config.Config, logger.Logger, error) {
	path := config.ResolvePath(opts.ConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if opts.Debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err = cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("Configuration loaded",
		logger.String("path", path),
		logger.Int("sources", len(cfg.Sources)),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.Bool("search_index", cfg.Elasticsearch.Enabled()),
		logger.Bool("analysis", cfg.Anthropic.APIKey != ""),
	)
	return cfg, log, nil
}
