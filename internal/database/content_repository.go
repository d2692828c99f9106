package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

const contentSelectColumns = `id, canonical_url, url, source_id, source_type, content_type, title,
	description, body, author, published_at, source_updated_at, tags, aws_services, categories,
	metadata, content_hash, processed, processed_at, quality, crawled_at, updated_at`

// contentRow is the storage shape of a content item.
type contentRow struct {
	ID              string         `db:"id"`
	CanonicalURL    string         `db:"canonical_url"`
	URL             string         `db:"url"`
	SourceID        string         `db:"source_id"`
	SourceType      string         `db:"source_type"`
	ContentType     string         `db:"content_type"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Body            string         `db:"body"`
	Author          string         `db:"author"`
	PublishedAt     *time.Time     `db:"published_at"`
	SourceUpdatedAt *time.Time     `db:"source_updated_at"`
	Tags            pq.StringArray `db:"tags"`
	Services        pq.StringArray `db:"aws_services"`
	Categories      pq.StringArray `db:"categories"`
	Metadata        []byte         `db:"metadata"`
	ContentHash     string         `db:"content_hash"`
	Processed       bool           `db:"processed"`
	ProcessedAt     *time.Time     `db:"processed_at"`
	Quality         []byte         `db:"quality"`
	CrawledAt       time.Time      `db:"crawled_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *contentRow) toDomain() (*domain.ContentItem, error) {
	item := &domain.ContentItem{
		ID:           r.ID,
		CanonicalURL: r.CanonicalURL,
		Candidate: domain.Candidate{
			URL:         r.URL,
			SourceID:    r.SourceID,
			SourceType:  domain.SourceType(r.SourceType),
			ContentType: domain.ContentType(r.ContentType),
			Title:       r.Title,
			Description: r.Description,
			Body:        r.Body,
			Author:      r.Author,
			PublishedAt: r.PublishedAt,
			UpdatedAt:   r.SourceUpdatedAt,
			Tags:        r.Tags,
			Services:    r.Services,
			Categories:  r.Categories,
		},
		ContentHash: r.ContentHash,
		Processed:   r.Processed,
		ProcessedAt: r.ProcessedAt,
		CrawledAt:   r.CrawledAt,
		ModifiedAt:  r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
	}
	if len(r.Quality) > 0 {
		var q domain.QualityScoreBundle
		if err := json.Unmarshal(r.Quality, &q); err != nil {
			return nil, fmt.Errorf("decode quality of %s: %w", r.ID, err)
		}
		item.Quality = &q
	}
	return item, nil
}

// ContentFilter narrows item selections.
type ContentFilter struct {
	ContentTypes []domain.ContentType
}

func (f ContentFilter) types() any {
	if len(f.ContentTypes) == 0 {
		return nil
	}
	out := make([]string, len(f.ContentTypes))
	for i, t := range f.ContentTypes {
		out[i] = string(t)
	}
	return pq.Array(out)
}

// ContentRepository stores crawled items keyed by canonical URL.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Upsert inserts item or refreshes the row with the same canonical URL.
// Metadata is last-writer-wins; processed is reset only when the body hash
// changed; aws_services are merged. item.ID is set from the stored row.
func (r *ContentRepository) Upsert(ctx context.Context, item *domain.ContentItem) (domain.UpsertOutcome, error) {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		WITH prev AS (
			SELECT content_hash FROM content_items WHERE canonical_url = $1
		)
		INSERT INTO content_items (
			canonical_url, url, source_id, source_type, content_type, title, description, body,
			author, published_at, source_updated_at, tags, aws_services, categories, metadata,
			content_hash, processed, crawled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, false, NOW(), NOW())
		ON CONFLICT (canonical_url) DO UPDATE SET
			url = EXCLUDED.url,
			source_id = EXCLUDED.source_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			body = EXCLUDED.body,
			author = EXCLUDED.author,
			published_at = COALESCE(EXCLUDED.published_at, content_items.published_at),
			source_updated_at = COALESCE(EXCLUDED.source_updated_at, content_items.source_updated_at),
			tags = EXCLUDED.tags,
			aws_services = ARRAY(
				SELECT DISTINCT s FROM unnest(content_items.aws_services || EXCLUDED.aws_services) AS s ORDER BY s
			),
			categories = EXCLUDED.categories,
			metadata = EXCLUDED.metadata,
			content_hash = EXCLUDED.content_hash,
			processed = CASE
				WHEN content_items.content_hash = EXCLUDED.content_hash THEN content_items.processed
				ELSE false
			END,
			updated_at = NOW()
		RETURNING id, (SELECT content_hash FROM prev) AS previous_hash
	`

	var out struct {
		ID           string         `db:"id"`
		PreviousHash sql.NullString `db:"previous_hash"`
	}
	err = r.db.GetContext(ctx, &out, query,
		item.CanonicalURL, item.URL, item.SourceID, string(item.SourceType), string(item.ContentType),
		item.Title, item.Description, item.Body, item.Author, item.PublishedAt, item.UpdatedAt,
		pq.Array(item.Tags), pq.Array(item.Services), pq.Array(item.Categories), metadata,
		item.ContentHash,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert content item: %w", err)
	}

	item.ID = out.ID
	switch {
	case !out.PreviousHash.Valid:
		return domain.OutcomeInserted, nil
	case out.PreviousHash.String == item.ContentHash:
		return domain.OutcomeUnchanged, nil
	default:
		return domain.OutcomeUpdated, nil
	}
}

// GetByURL returns the item stored under canonicalURL.
func (r *ContentRepository) GetByURL(ctx context.Context, canonicalURL string) (*domain.ContentItem, error) {
	query := `SELECT ` + contentSelectColumns + ` FROM content_items WHERE canonical_url = $1`

	var row contentRow
	if err := r.db.GetContext(ctx, &row, query, canonicalURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, canonicalURL)
		}
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return row.toDomain()
}

// ExistsByURL reports whether canonicalURL is stored.
func (r *ContentRepository) ExistsByURL(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM content_items WHERE canonical_url = $1)`
	if err := r.db.GetContext(ctx, &exists, query, canonicalURL); err != nil {
		return false, fmt.Errorf("failed to check content item: %w", err)
	}
	return exists, nil
}

// FindUnprocessed returns up to limit unscored items, oldest first.
func (r *ContentRepository) FindUnprocessed(ctx context.Context, limit int, filter ContentFilter) ([]*domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectColumns + `
		FROM content_items
		WHERE processed = false
		  AND ($2::text[] IS NULL OR content_type = ANY($2))
		ORDER BY crawled_at ASC
		LIMIT $1
	`
	return r.selectItems(ctx, query, limit, filter.types())
}

// FindLowQuality returns up to limit scored items whose overall score is below threshold.
func (r *ContentRepository) FindLowQuality(ctx context.Context, threshold float64, limit int, filter ContentFilter) ([]*domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectColumns + `
		FROM content_items
		WHERE processed = true
		  AND quality_score < $2
		  AND ($3::text[] IS NULL OR content_type = ANY($3))
		ORDER BY quality_score ASC, processed_at ASC
		LIMIT $1
	`
	return r.selectItems(ctx, query, limit, threshold, filter.types())
}

func (r *ContentRepository) selectItems(ctx context.Context, query string, args ...any) ([]*domain.ContentItem, error) {
	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select content items: %w", err)
	}

	items := make([]*domain.ContentItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// SaveQuality writes bundle, merges its services into aws_services and marks
// the item processed, provided its body still hashes to contentHash.
// Otherwise it returns ErrStaleContent.
func (r *ContentRepository) SaveQuality(ctx context.Context, id, contentHash string, bundle *domain.QualityScoreBundle) error {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode quality: %w", err)
	}

	query := `
		UPDATE content_items
		SET quality = $3, quality_score = $4, difficulty_level = $5,
			aws_services = ARRAY(SELECT DISTINCT s FROM unnest(aws_services || $6::text[]) AS s ORDER BY s),
			processed = true, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND content_hash = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		id, contentHash, payload, bundle.Overall, string(bundle.Difficulty), pq.Array(bundle.Services))
	if err != nil {
		return fmt.Errorf("failed to save quality: %w", err)
	}
	return requireAffected(result, nil, fmt.Errorf("%w: %s", ErrStaleContent, id))
}

// CountByStatus returns item counts keyed by "processed" and "unprocessed".
func (r *ContentRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT processed, COUNT(*) AS count FROM content_items GROUP BY processed`

	var rows []struct {
		Processed bool `db:"processed"`
		Count     int  `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count content items: %w", err)
	}

	counts := map[string]int{"processed": 0, "unprocessed": 0}
	for _, row := range rows {
		if row.Processed {
			counts["processed"] = row.Count
		} else {
			counts["unprocessed"] = row.Count
		}
	}
	return counts, nil
}
