package job_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/job"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(retention time.Duration) (*job.MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return job.NewMemoryStore(retention, logger.NewNop(), job.WithClock(clock.Now)), clock
}

func setStatus(s domain.JobStatus, progress int) func(*domain.CrawlJob) {
	return func(j *domain.CrawlJob) {
		j.Status = s
		j.Progress = progress
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	store, _ := newStore(time.Minute)
	created := store.Create(domain.OpDailyUpdate)
	assert.Equal(t, domain.JobPending, created.Status)

	running, err := store.Update(created.ID, setStatus(domain.JobRunning, 10))
	require.NoError(t, err)
	require.NotNil(t, running.StartedAt)

	done, err := store.Update(created.ID, setStatus(domain.JobCompleted, 90))
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.FinishedAt)

	_, err = store.Update(created.ID, setStatus(domain.JobRunning, 100))
	require.ErrorIs(t, err, domain.ErrJobTerminal)
}

func TestMemoryStore_ProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	store, _ := newStore(time.Minute)
	j := store.Create(domain.OpFullCrawl)
	_, err := store.Update(j.ID, setStatus(domain.JobRunning, 40))
	require.NoError(t, err)

	got, err := store.Update(j.ID, setStatus(domain.JobRunning, 20))
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)

	got, err = store.Update(j.ID, setStatus(domain.JobRunning, 250))
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestMemoryStore_InvalidTransitionRejected(t *testing.T) {
	t.Parallel()

	store, _ := newStore(time.Minute)
	j := store.Create(domain.OpProcessContent)

	_, err := store.Update(j.ID, setStatus(domain.JobCompleted, 100))
	require.Error(t, err)

	got, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, got.Status)

	_, err = store.Update(j.ID, func(j *domain.CrawlJob) { j.Status = domain.JobFailed; j.Error = "rejected" })
	require.NoError(t, err)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	store, _ := newStore(time.Minute)
	j := store.Create(domain.OpDailyUpdate)
	_, err := store.Update(j.ID, func(j *domain.CrawlJob) {
		j.Status = domain.JobRunning
		j.Stats = domain.NewJobStats()
		j.Stats.RecordSource("aws-blogs", domain.CrawlStats{Attempted: 1, Inserted: 1})
	})
	require.NoError(t, err)

	snap, err := store.Get(j.ID)
	require.NoError(t, err)
	snap.Stats.Sources["aws-blogs"] = domain.CrawlStats{}
	snap.Message = "mutated"

	again, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Stats.Sources["aws-blogs"].Inserted)
	assert.NotEqual(t, "mutated", again.Message)
}

func TestMemoryStore_PurgeAfterRetention(t *testing.T) {
	t.Parallel()

	store, clock := newStore(10 * time.Minute)
	finished := store.Create(domain.OpDailyUpdate)
	_, err := store.Update(finished.ID, setStatus(domain.JobRunning, 0))
	require.NoError(t, err)
	_, err = store.Update(finished.ID, setStatus(domain.JobFailed, 0))
	require.NoError(t, err)
	running := store.Create(domain.OpFullCrawl)
	_, err = store.Update(running.ID, setStatus(domain.JobRunning, 0))
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	assert.Zero(t, store.Purge(clock.Now()))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, store.Purge(clock.Now()))

	_, err = store.Get(finished.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(running.ID)
	require.NoError(t, err)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	store, clock := newStore(time.Minute)
	first := store.Create(domain.OpDailyUpdate)
	clock.Advance(time.Second)
	second := store.Create(domain.OpFullCrawl)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(0, logger.NewNop())
	j := store.Create(domain.OpProcessContent)
	_, err := store.Update(j.ID, setStatus(domain.JobFailed, 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, getErr := store.Get(j.ID)
		return getErr != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestMemoryStore_ConcurrentReadsDuringUpdates(t *testing.T) {
	t.Parallel()

	store, _ := newStore(time.Minute)
	j := store.Create(domain.OpFullCrawl)
	_, err := store.Update(j.ID, setStatus(domain.JobRunning, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for p := 1; p <= 100; p++ {
			_, _ = store.Update(j.ID, setStatus(domain.JobRunning, p))
		}
	}()
	go func() {
		defer wg.Done()
		last := 0
		for range 100 {
			snap, getErr := store.Get(j.ID)
			if !assert.NoError(t, getErr) {
				return
			}
			assert.GreaterOrEqual(t, snap.Progress, last)
			last = snap.Progress
		}
	}()
	wg.Wait()
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to domain.JobStatus
		ok       bool
	}{
		{domain.JobPending, domain.JobRunning, true},
		{domain.JobPending, domain.JobFailed, true},
		{domain.JobPending, domain.JobCompleted, false},
		{domain.JobRunning, domain.JobRunning, true},
		{domain.JobRunning, domain.JobCompleted, true},
		{domain.JobRunning, domain.JobPending, false},
		{domain.JobCompleted, domain.JobFailed, false},
		{domain.JobFailed, domain.JobRunning, false},
	}
	for _, tt := range tests {
		err := job.ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
}
