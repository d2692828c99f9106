package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

func TestParseOperation(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"daily-update", "full-crawl", "process-content", "reprocess-low-quality"} {
		op, err := domain.ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, domain.Operation(name), op)
	}

	for _, name := range []string{"", "custom-crawl", "nightly"} {
		_, err := domain.ParseOperation(name)
		if !errors.Is(err, domain.ErrInvalidOperation) {
			t.Errorf("ParseOperation(%q) error = %v, want ErrInvalidOperation", name, err)
		}
	}
}

func TestNewQualityScoreBundle_OverallIsMean(t *testing.T) {
	t.Parallel()

	b := domain.NewQualityScoreBundle(domain.Scores{
		TechnicalDepth: 0.8, PracticalValue: 0.6, Clarity: 1.0, Currency: 0.2,
	}, domain.DifficultyAdvanced, "s")

	assert.InDelta(t, 0.65, b.Overall, 1e-9)
	assert.Equal(t, domain.DifficultyAdvanced, b.Difficulty)
}

func TestNewQualityScoreBundle_Clamps(t *testing.T) {
	t.Parallel()

	b := domain.NewQualityScoreBundle(domain.Scores{
		TechnicalDepth: 1.7, PracticalValue: -0.3, Clarity: 0.5, Currency: 0.5,
	}, domain.DifficultyBeginner, "")

	assert.InDelta(t, 1.0, b.TechnicalDepth, 1e-9)
	assert.InDelta(t, 0.0, b.PracticalValue, 1e-9)
	assert.InDelta(t, 0.5, b.Overall, 1e-9)
}

func TestParseDifficulty_DefaultsToIntermediate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.DifficultyBeginner, domain.ParseDifficulty("beginner"))
	assert.Equal(t, domain.DifficultyIntermediate, domain.ParseDifficulty("expert"))
}

func TestContentHash_IgnoresTitle(t *testing.T) {
	t.Parallel()

	a := domain.Candidate{Title: "One", Body: "same body"}
	b := domain.Candidate{Title: "Two", Body: "same body"}
	c := domain.Candidate{Title: "One", Body: "other body"}

	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
	assert.Len(t, a.ContentHash(), 64)
}

func TestJobStats_Totals(t *testing.T) {
	t.Parallel()

	s := domain.NewJobStats()
	s.RecordSource("aws-blogs", domain.CrawlStats{Attempted: 10, Inserted: 4, Updated: 2, Duplicates: 3, Failed: 1})
	s.RecordSource("aws-docs", domain.CrawlStats{Attempted: 5, Inserted: 5})
	s.RecordProcessing(domain.ProcessStats{Attempted: 11, Scored: 9, BelowThreshold: 2, Failed: 2})

	assert.Equal(t, domain.Totals{TotalProcessed: 26, Successful: 20, Failed: 3, Duplicates: 3}, s.Total)

	// re-recording a source replaces it
	s.RecordSource("aws-docs", domain.CrawlStats{Attempted: 1, Failed: 1})
	assert.Equal(t, domain.Totals{TotalProcessed: 22, Successful: 15, Failed: 4, Duplicates: 3}, s.Total)
}

func TestCrawlJob_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	j := &domain.CrawlJob{ID: "j", Stats: domain.NewJobStats(), StartedAt: &now}
	j.Stats.RecordSource("a", domain.CrawlStats{Attempted: 1, Inserted: 1})

	c := j.Clone()
	c.Stats.RecordSource("b", domain.CrawlStats{Attempted: 2, Failed: 2})
	*c.StartedAt = now.Add(time.Hour)

	assert.Len(t, j.Stats.Sources, 1)
	assert.True(t, j.StartedAt.Equal(now))
}

func TestWithScope_EmptyPlanKeepsSourceScope(t *testing.T) {
	t.Parallel()

	src := domain.ContentSource{ID: "aws-blogs", Options: domain.SourceOptions{Categories: []string{"devops", "security"}}}

	kept := src.WithScope(domain.SourceOptions{})
	assert.Equal(t, []string{"devops", "security"}, kept.Options.Categories)

	narrowed := src.WithScope(domain.SourceOptions{Categories: []string{"devops"}, FetchFullContent: true})
	assert.Equal(t, []string{"devops"}, narrowed.Options.Categories)
	assert.True(t, narrowed.Options.FetchFullContent)
	assert.Equal(t, []string{"devops", "security"}, src.Options.Categories)
}

func TestWithScope_PlanDoesNotClearSourceFlags(t *testing.T) {
	t.Parallel()

	src := domain.ContentSource{ID: "aws-youtube", Options: domain.SourceOptions{FetchTranscripts: true}}
	scoped := src.WithScope(domain.SourceOptions{Playlists: []string{"aws-devops"}})

	assert.True(t, scoped.Options.FetchTranscripts)
	assert.False(t, scoped.Options.FetchFullContent)
}

func TestRevision_PrefersNewest(t *testing.T) {
	t.Parallel()

	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	upd := pub.Add(48 * time.Hour)

	c := domain.Candidate{PublishedAt: &pub, UpdatedAt: &upd}
	assert.Equal(t, upd, *c.Revision())

	c.UpdatedAt = nil
	assert.Equal(t, pub, *c.Revision())
}
