package database

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_stores.go -package=mocks . ContentStore,SourceStore

// ContentStore defines the contract for content item data access.
type ContentStore interface {
	Upsert(ctx context.Context, item *domain.ContentItem) (domain.UpsertOutcome, error)
	GetByURL(ctx context.Context, canonicalURL string) (*domain.ContentItem, error)
	ExistsByURL(ctx context.Context, canonicalURL string) (bool, error)
	FindUnprocessed(ctx context.Context, limit int, filter ContentFilter) ([]*domain.ContentItem, error)
	FindLowQuality(ctx context.Context, threshold float64, limit int, filter ContentFilter) ([]*domain.ContentItem, error)
	SaveQuality(ctx context.Context, id, contentHash string, bundle *domain.QualityScoreBundle) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// SourceStore defines the contract for source cursor data access.
type SourceStore interface {
	SeedSources(ctx context.Context, sources []domain.ContentSource) error
	ListActive(ctx context.Context) ([]domain.ContentSource, error)
	Get(ctx context.Context, id string) (*domain.ContentSource, error)
	AdvanceCursor(ctx context.Context, id string, ts time.Time) error
}

var (
	_ ContentStore = (*ContentRepository)(nil)
	_ SourceStore  = (*SourceRepository)(nil)
)
