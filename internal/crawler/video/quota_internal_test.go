package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

func TestQuota_ResetsAtUTCMidnight(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)
	q := NewQuota(2)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Spend(1))
	require.NoError(t, q.Spend(1))
	assert.ErrorIs(t, q.Spend(1), domain.ErrQuotaExceeded)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, q.Spend(1))
	assert.Equal(t, 1, q.Used())
}

func TestQuota_Exhaust(t *testing.T) {
	t.Parallel()

	q := NewQuota(0)
	require.NoError(t, q.Spend(100))
	q.Exhaust()
	assert.ErrorIs(t, q.Spend(1), domain.ErrQuotaExceeded)
}
