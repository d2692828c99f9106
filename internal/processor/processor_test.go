package processor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/analysis"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database/mocks"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/processor"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/retry"
)

// scriptedAnalyzer answers per title from a queue of results.
type scriptedAnalyzer struct {
	mu      sync.Mutex
	answers map[string][]func() (*analysis.Result, error)
	calls   map[string]int
}

func newScripted() *scriptedAnalyzer {
	return &scriptedAnalyzer{answers: map[string][]func() (*analysis.Result, error){}, calls: map[string]int{}}
}

func (s *scriptedAnalyzer) on(title string, answers ...func() (*analysis.Result, error)) {
	s.answers[title] = answers
}

func (s *scriptedAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[req.Title]
	s.calls[req.Title]++
	queue := s.answers[req.Title]
	if n >= len(queue) {
		return queue[len(queue)-1]()
	}
	return queue[n]()
}

func scored(v float64) func() (*analysis.Result, error) {
	return func() (*analysis.Result, error) {
		q := domain.NewQualityScoreBundle(domain.Scores{TechnicalDepth: v, PracticalValue: v, Clarity: v, Currency: v}, domain.DifficultyBeginner, "s")
		q.Services = []string{"s3"}
		return &analysis.Result{Quality: q}, nil
	}
}

func failing(err error) func() (*analysis.Result, error) {
	return func() (*analysis.Result, error) { return nil, err }
}

type recordingIndexer struct {
	mu    sync.Mutex
	items []*domain.ContentItem
	err   error
}

func (r *recordingIndexer) Index(_ context.Context, item *domain.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, item)
	return nil
}

func items(titles ...string) []*domain.ContentItem {
	out := make([]*domain.ContentItem, 0, len(titles))
	for i, title := range titles {
		out = append(out, &domain.ContentItem{
			ID:          fmt.Sprintf("item-%d", i),
			ContentHash: "hash",
			Candidate:   domain.Candidate{Title: title, Body: "body", Services: []string{"ec2"}},
		})
	}
	return out
}

func fastRetry() processor.Config {
	return processor.Config{Retry: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}}
}

func TestProcessBatch_BelowThresholdStillStored(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("good", scored(0.9))
	an.on("weak", scored(0.2))
	idx := &recordingIndexer{}

	store.EXPECT().FindUnprocessed(gomock.Any(), 50, database.ContentFilter{}).Return(items("good", "weak"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-0", "hash", gomock.Any()).Return(nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-1", "hash", gomock.Any()).Return(nil)

	var events []float64
	p := processor.New(store, an, idx, fastRetry(), logger.NewNop())
	stats, err := p.ProcessBatch(context.Background(), processor.Options{
		BatchSize: 50,
		Threshold: 0.5,
		Progress: crawler.ProgressFunc(func(stage string, f float64, _ string) {
			assert.Equal(t, processor.StageProcessing, stage)
			events = append(events, f)
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ProcessStats{Attempted: 2, Scored: 2, BelowThreshold: 1, Indexed: 2}, stats)
	assert.Equal(t, []float64{0.5, 1}, events)
	require.Len(t, idx.items, 2)
	assert.True(t, idx.items[1].Processed)
	assert.Equal(t, []string{"ec2", "s3"}, idx.items[1].Services)
}

func TestProcessBatch_TransientFailureRetried(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("flaky", failing(domain.ErrRateLimited), scored(0.8))

	store.EXPECT().FindUnprocessed(gomock.Any(), 10, gomock.Any()).Return(items("flaky"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-0", "hash", gomock.Any()).Return(nil)

	stats, err := processor.New(store, an, nil, fastRetry(), logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{BatchSize: 10, Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scored)
	assert.Equal(t, 2, an.calls["flaky"])
}

func TestProcessBatch_ExhaustedRetriesCountAsFailed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("down", failing(domain.ErrUpstreamUnavailable))
	an.on("bad", failing(domain.ErrInternal))
	an.on("ok", scored(0.7))

	store.EXPECT().FindUnprocessed(gomock.Any(), 10, gomock.Any()).Return(items("down", "bad", "ok"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-2", "hash", gomock.Any()).Return(nil)

	var outcomes []string
	cfg := fastRetry()
	cfg.OnAnalysis = func(o string) { outcomes = append(outcomes, o) }

	stats, err := processor.New(store, an, nil, cfg, logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{BatchSize: 10, Threshold: 0.5})
	require.NoError(t, err)

	assert.Equal(t, domain.ProcessStats{Attempted: 3, Scored: 1, Failed: 2}, stats)
	assert.Equal(t, stats.Attempted, stats.Scored+stats.Failed)
	assert.Equal(t, 3, an.calls["down"])
	assert.Equal(t, 1, an.calls["bad"], "non-retryable errors are not retried")
	assert.Equal(t, []string{processor.OutcomeFailed, processor.OutcomeFailed, processor.OutcomeScored}, outcomes)
}

func TestProcessBatch_StaleContentIsFailed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("moving", scored(0.9))

	store.EXPECT().FindUnprocessed(gomock.Any(), 5, gomock.Any()).Return(items("moving"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-0", "hash", gomock.Any()).Return(database.ErrStaleContent)

	stats, err := processor.New(store, an, nil, fastRetry(), logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{BatchSize: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStats{Attempted: 1, Failed: 1}, stats)
}

func TestProcessBatch_IndexerFailureKeepsStats(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("a", scored(0.9))

	store.EXPECT().FindUnprocessed(gomock.Any(), 5, gomock.Any()).Return(items("a"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	stats, err := processor.New(store, an, &recordingIndexer{err: errors.New("es down")}, fastRetry(), logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{BatchSize: 5, Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStats{Attempted: 1, Scored: 1}, stats)
}

func TestProcessBatch_FiltersContentTypes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	filter := database.ContentFilter{ContentTypes: []domain.ContentType{domain.ContentVideo}}

	store.EXPECT().FindUnprocessed(gomock.Any(), 20, filter).Return(nil, nil)

	var last float64
	stats, err := processor.New(store, newScripted(), nil, fastRetry(), logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{
			BatchSize:    20,
			ContentTypes: filter.ContentTypes,
			Progress:     crawler.ProgressFunc(func(_ string, f float64, _ string) { last = f }),
		})
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
	assert.InDelta(t, 1.0, last, 1e-9)
}

func TestProcessBatch_SelectionError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	store.EXPECT().FindUnprocessed(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := processor.New(store, newScripted(), nil, fastRetry(), logger.NewNop()).
		ProcessBatch(context.Background(), processor.Options{BatchSize: 5})
	assert.Error(t, err)
}

func TestProcessBatch_CancelStops(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	an := newScripted()
	an.on("first", func() (*analysis.Result, error) {
		cancel()
		return nil, context.Canceled
	})

	store.EXPECT().FindUnprocessed(gomock.Any(), 5, gomock.Any()).Return(items("first", "second"), nil)

	stats, err := processor.New(store, an, nil, fastRetry(), logger.NewNop()).
		ProcessBatch(ctx, processor.Options{BatchSize: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Attempted)
	assert.Zero(t, an.calls["second"])
}

func TestReprocessLowQuality(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockContentStore(ctrl)
	an := newScripted()
	an.on("weak", scored(0.6))

	store.EXPECT().FindLowQuality(gomock.Any(), 0.5, 100, gomock.Any()).Return(items("weak"), nil)
	store.EXPECT().SaveQuality(gomock.Any(), "item-0", "hash", gomock.Any()).Return(nil)

	stats, err := processor.New(store, an, nil, fastRetry(), logger.NewNop()).
		ReprocessLowQuality(context.Background(), processor.Options{BatchSize: 100, Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStats{Attempted: 1, Scored: 1}, stats)
}
