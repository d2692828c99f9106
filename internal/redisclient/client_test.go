package redisclient_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/redisclient"
)

func TestNew_RequiresAddress(t *testing.T) {
	t.Parallel()

	client, err := redisclient.New(context.Background(), config.RedisConfig{})
	assert.ErrorIs(t, err, redisclient.ErrEmptyAddress)
	assert.Nil(t, client)
}

func TestNew_Connects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := redisclient.New(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNew_PingFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redisclient.New(context.Background(), config.RedisConfig{Address: addr})
	assert.Error(t, err)
}
