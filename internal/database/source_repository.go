package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

const sourceSelectColumns = `id, name, source_type, base_url, feed_url, requests_per_minute, last_crawled, active`

// SourceRepository stores configured sources and their crawl cursors.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// SeedSources upserts the configured sources in one transaction. Cursors of
// existing rows are preserved.
func (r *SourceRepository) SeedSources(ctx context.Context, sources []domain.ContentSource) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO content_sources (id, name, source_type, base_url, feed_url, requests_per_minute, active)
		VALUES (:id, :name, :source_type, :base_url, :feed_url, :requests_per_minute, :active)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source_type = EXCLUDED.source_type,
			base_url = EXCLUDED.base_url,
			feed_url = EXCLUDED.feed_url,
			requests_per_minute = EXCLUDED.requests_per_minute,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	for i := range sources {
		if _, err := tx.NamedExecContext(ctx, query, &sources[i]); err != nil {
			return fmt.Errorf("failed to seed source %s: %w", sources[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

// ListActive returns active sources ordered by id.
func (r *SourceRepository) ListActive(ctx context.Context) ([]domain.ContentSource, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM content_sources WHERE active = true ORDER BY id`

	var sources []domain.ContentSource
	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	if sources == nil {
		sources = []domain.ContentSource{}
	}
	return sources, nil
}

// Get returns one source.
func (r *SourceRepository) Get(ctx context.Context, id string) (*domain.ContentSource, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM content_sources WHERE id = $1`

	var src domain.ContentSource
	if err := r.db.GetContext(ctx, &src, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}

// AdvanceCursor moves last_crawled of id to ts unless it is already later.
func (r *SourceRepository) AdvanceCursor(ctx context.Context, id string, ts time.Time) error {
	query := `
		UPDATE content_sources
		SET last_crawled = GREATEST(last_crawled, $2), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, ts.UTC())
	return requireAffected(result, err, fmt.Errorf("%w: source %s", domain.ErrNotFound, id))
}
