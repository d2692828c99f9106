package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/redisclient"
)

// SetupDatabase connects to PostgreSQL and seeds the
// configured sources so their cursors exist.
func SetupDatabase(ctx context.Context, cfg *config.Config, log logger.Logger) (*sqlx.DB, error) {
	db, err := database.Connect(ctx, cfg.Database.DSN(), database.Pool{
		MaxOpen:     cfg.Database.MaxOpenConns,
		MaxIdle:     cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err = RunMigrations(cfg, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	sources, err := cfg.ContentSources()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid sources: %w", err)
	}
	if err = database.NewSourceRepository(db).SeedSources(ctx, sources); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to seed sources: %w", err)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.Name),
		logger.Int("sources_seeded", len(sources)),
	)
	return db, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(cfg *config.Config, log logger.Logger) error {
	m, err := database.NewMigrator(cfg.Database.DSN(), cfg.Database.MigrationsPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			log.Warn("Failed to close migrator", logger.Error(closeErr))
		}
	}()
	return m.Up()
}

// SetupRedis returns nil when Redis is disabled.
func SetupRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Info("Redis disabled, using in-process source locks without hash cache")
		return nil, nil
	}
	client, err := redisclient.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis connected", logger.String("address", cfg.Address))
	return client, nil
}
