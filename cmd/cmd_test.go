package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "content-crawler version 1.2.3\n", out)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand("dev")
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "crawl", "sources", "migrate", "version"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestMigrateCommand_Subcommands(t *testing.T) {
	root := NewRootCommand("dev")
	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.Equal(t, "1", migrate.Flags().Lookup("steps").DefValue)
}

func TestRunCommand_RejectsBadArgs(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)

	_, err = execute(t, "run", "custom-crawl")
	require.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = execute(t, "run", "nightly")
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestCrawlCommand_RejectsBadKind(t *testing.T) {
	_, err := execute(t, "crawl", "podcast", "https://example.com")
	require.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = execute(t, "crawl", "blog")
	require.Error(t, err)
}

func TestRenderJob(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	stats := domain.NewJobStats()
	stats.RecordSource("aws-blogs", domain.CrawlStats{Attempted: 3, Inserted: 2, Duplicates: 1})
	stats.RecordSource("aws-youtube", domain.CrawlStats{Skipped: "busy"})
	stats.RecordProcessing(domain.ProcessStats{Attempted: 2, Scored: 2, BelowThreshold: 1})

	var out bytes.Buffer
	renderJob(&out, &domain.CrawlJob{
		Operation:  domain.OpDailyUpdate,
		Status:     domain.JobCompleted,
		Message:    "Daily update completed",
		Stats:      stats,
		StartedAt:  &start,
		FinishedAt: &end,
	})

	got := out.String()
	assert.Contains(t, got, "daily-update completed: Daily update completed (1m 30s)")
	assert.Contains(t, got, "aws-blogs")
	assert.Contains(t, got, "busy")
	assert.Contains(t, got, "BELOW THRESHOLD")
}

func TestRenderJob_Candidates(t *testing.T) {
	published := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	renderJob(&out, &domain.CrawlJob{
		Operation: domain.OpCustomCrawl,
		Status:    domain.JobCompleted,
		Message:   "Custom crawl completed",
		Result: []domain.Candidate{{
			URL:         "https://aws.amazon.com/blogs/compute/post",
			ContentType: domain.ContentBlogPost,
			Title:       "Scaling Lambda",
			PublishedAt: &published,
		}},
	})
	assert.Contains(t, out.String(), "Scaling Lambda")
	assert.Contains(t, out.String(), "2026-03-04")
}

func TestRenderSources(t *testing.T) {
	last := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	var out bytes.Buffer
	renderSources(&out, []domain.ContentSource{
		{ID: "aws-docs", Type: domain.SourceDocs, Name: "AWS Docs", Active: true},
		{ID: "aws-blogs", Type: domain.SourceBlog, Name: "AWS Blogs", LastCrawled: &last},
	})
	assert.Contains(t, out.String(), "never")
	assert.Contains(t, out.String(), "2026-05-06T07:08:09Z")
}
