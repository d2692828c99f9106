package scheduler_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/scheduler"
)

type fakeStarter struct {
	mu      sync.Mutex
	running bool
	err     error
	started []string
}

func (f *fakeStarter) Start(op string) (*domain.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, op)
	return &domain.CrawlJob{ID: "job-1", Operation: domain.Operation(op)}, nil
}

func (f *fakeStarter) Running(domain.Operation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func TestNew_RejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := scheduler.New("every day at three", &fakeStarter{}, logger.NewNop())
	require.Error(t, err)
}

func TestNew_AcceptsSecondsAndDescriptors(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"0 3 * * *", "30 0 3 * * *", "@daily"} {
		_, err := scheduler.New(spec, &fakeStarter{}, logger.NewNop())
		assert.NoError(t, err, spec)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	s, err := scheduler.New("0 3 * * *", starter, logger.NewNop())
	require.NoError(t, err)

	assert.True(t, s.Trigger(domain.OpDailyUpdate))
	assert.Equal(t, []string{"daily-update"}, starter.started)

	starter.running = true
	assert.False(t, s.Trigger(domain.OpDailyUpdate))
	assert.Len(t, starter.started, 1)

	starter.running = false
	starter.err = errors.New("orchestrator shutting down")
	assert.False(t, s.Trigger(domain.OpDailyUpdate))
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, err := scheduler.New("@every 1h", &fakeStarter{}, logger.NewNop())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
