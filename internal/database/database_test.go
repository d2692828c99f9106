package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

var contentColumns = []string{
	"id", "canonical_url", "url", "source_id", "source_type", "content_type", "title",
	"description", "body", "author", "published_at", "source_updated_at", "tags", "aws_services",
	"categories", "metadata", "content_hash", "processed", "processed_at", "quality", "crawled_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func newItem() *domain.ContentItem {
	item := &domain.ContentItem{
		CanonicalURL: "https://aws.amazon.com/blogs/devops/post",
		Candidate: domain.Candidate{
			URL:         "https://aws.amazon.com/blogs/devops/post/?utm_source=x",
			SourceID:    "aws-blogs",
			SourceType:  domain.SourceBlog,
			ContentType: domain.ContentBlogPost,
			Title:       "Post",
			Body:        "body",
			Services:    []string{"lambda"},
		},
	}
	item.ContentHash = item.Candidate.ContentHash()
	return item
}

func TestContentRepository_Upsert_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous any
		want     domain.UpsertOutcome
	}{
		{name: "new row", previous: nil, want: domain.OutcomeInserted},
		{name: "same hash", previous: newItem().ContentHash, want: domain.OutcomeUnchanged},
		{name: "changed hash", previous: "old-hash", want: domain.OutcomeUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t)
			repo := database.NewContentRepository(db)
			item := newItem()

			mock.ExpectQuery(`WITH prev AS .+ INSERT INTO content_items .+ ON CONFLICT \(canonical_url\) DO UPDATE`).
				WithArgs(item.CanonicalURL, item.URL, "aws-blogs", "blog", "blog_post", "Post", "", "body", "",
					nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), item.ContentHash).
				WillReturnRows(sqlmock.NewRows([]string{"id", "previous_hash"}).AddRow("item-1", tt.previous))

			outcome, err := repo.Upsert(context.Background(), item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, "item-1", item.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestContentRepository_Upsert_ResetsProcessedOnlyOnHashChange(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery(`WHEN content_items.content_hash = EXCLUDED.content_hash THEN content_items.processed`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "previous_hash"}).AddRow("item-1", nil))

	_, err := repo.Upsert(context.Background(), newItem())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepository_GetByURL(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM content_items WHERE canonical_url").
		WithArgs("https://example.com/a").
		WillReturnRows(sqlmock.NewRows(contentColumns).AddRow(
			"item-1", "https://example.com/a", "https://example.com/a", "aws-youtube", "video", "video", "Talk",
			"", "body", "AWS", now, nil, "{kubernetes}", "{eks,ecs}", "{video,tutorial}",
			[]byte(`{"video_id":"abc","duration_seconds":60}`), "hash", true, now,
			[]byte(`{"technical_depth":0.8,"overall":0.7,"difficulty_level":"advanced"}`), now, now,
		))

	item, err := repo.GetByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"eks", "ecs"}, item.Services)
	assert.Equal(t, "abc", item.Metadata.VideoID)
	assert.Equal(t, 60, item.Metadata.DurationSeconds)
	require.NotNil(t, item.Quality)
	assert.InDelta(t, 0.7, item.Quality.Overall, 1e-9)
	assert.Equal(t, domain.DifficultyAdvanced, item.Quality.Difficulty)
}

func TestContentRepository_GetByURL_NotFound(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM content_items").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByURL(context.Background(), "https://example.com/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContentRepository_FindUnprocessed_FiltersTypes(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery(`WHERE processed = false`).
		WithArgs(10, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(contentColumns))

	items, err := repo.FindUnprocessed(context.Background(), 10, database.ContentFilter{
		ContentTypes: []domain.ContentType{domain.ContentVideo},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepository_SaveQuality_StaleHash(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)
	bundle := domain.NewQualityScoreBundle(domain.Scores{TechnicalDepth: 1, PracticalValue: 1, Clarity: 1, Currency: 1}, domain.DifficultyBeginner, "s")

	mock.ExpectExec(`UPDATE content_items\s+SET quality = .+ WHERE id = \$1 AND content_hash = \$2`).
		WithArgs("item-1", "hash", sqlmock.AnyArg(), 1.0, "beginner", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveQuality(context.Background(), "item-1", "hash", bundle)
	assert.ErrorIs(t, err, database.ErrStaleContent)
}

func TestContentRepository_CountByStatus(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery("SELECT processed, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"processed", "count"}).AddRow(true, 4).AddRow(false, 2))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"processed": 4, "unprocessed": 2}, counts)
}

func TestSourceRepository_SeedSources(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewSourceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO content_sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SeedSources(context.Background(), []domain.ContentSource{
		{ID: "aws-docs", Type: domain.SourceDocs, Active: true},
		{ID: "aws-blogs", Type: domain.SourceBlog, Active: true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_SeedSources_RollsBack(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewSourceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_sources").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.SeedSources(context.Background(), []domain.ContentSource{{ID: "aws-docs"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_AdvanceCursor(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewSourceRepository(db)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`SET last_crawled = GREATEST\(last_crawled, \$2\)`).
		WithArgs("aws-docs", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AdvanceCursor(context.Background(), "aws-docs", ts))

	mock.ExpectExec("UPDATE content_sources").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.AdvanceCursor(context.Background(), "missing", ts), domain.ErrNotFound)
}

func TestSourceRepository_Get(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewSourceRepository(db)

	mock.ExpectQuery("SELECT .+ FROM content_sources WHERE id").
		WithArgs("aws-docs").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "source_type", "base_url", "feed_url", "requests_per_minute", "last_crawled", "active",
		}).AddRow("aws-docs", "AWS Docs", "docs", "https://docs.aws.amazon.com", "", 60, nil, true))

	src, err := repo.Get(context.Background(), "aws-docs")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDocs, src.Type)
	assert.Nil(t, src.LastCrawled)
}

func TestPing(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	mock.ExpectPing()
	require.NoError(t, database.Ping(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.Error(t, database.Ping(context.Background(), db))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsURL(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "file://"+filepath.ToSlash(dir), database.MigrationsURL(dir))

	rel := database.MigrationsURL("migrations")
	assert.True(t, strings.HasPrefix(rel, "file:///"))
	assert.True(t, strings.HasSuffix(rel, "/migrations"))
}
