package httpfetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
)

type countingLimiter struct {
	keys []string
	err  error
}

func (c *countingLimiter) Acquire(_ context.Context, key string) error {
	c.keys = append(c.keys, key)
	return c.err
}

func TestGet_AcquiresAndSendsHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotETag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotETag = r.Header.Get("If-None-Match")
		w.Header().Set("ETag", `"v2"`)
		_, _ = w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	lim := &countingLimiter{}
	f := httpfetch.New(httpfetch.Config{UserAgent: "test-agent"}, lim, srv.Client())

	resp, err := f.Get(context.Background(), "aws-blogs", srv.URL, httpfetch.WithETag(`"v1"`))
	require.NoError(t, err)

	assert.Equal(t, []string{"aws-blogs"}, lim.keys)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, `"v1"`, gotETag)
	assert.Equal(t, `"v2"`, resp.ETag)
	assert.Equal(t, "<rss/>", string(resp.Body))
}

func TestGet_NotModified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := httpfetch.New(httpfetch.Config{}, nil, srv.Client())
	resp, err := f.Get(context.Background(), "k", srv.URL, httpfetch.WithIfModifiedSince("Sat, 01 Jan 2024 00:00:00 GMT"))
	require.NoError(t, err)
	assert.True(t, resp.NotModified())
	assert.Empty(t, resp.Body)
}

func TestGet_ClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		kind     httpfetch.Kind
		sentinel error
	}{
		{http.StatusTooManyRequests, httpfetch.KindRateLimited, domain.ErrRateLimited},
		{http.StatusForbidden, httpfetch.KindForbidden, domain.ErrUpstreamUnavailable},
		{http.StatusNotFound, httpfetch.KindNotFound, domain.ErrUpstreamUnavailable},
		{http.StatusGone, httpfetch.KindGone, domain.ErrUpstreamUnavailable},
		{http.StatusBadGateway, httpfetch.KindUpstream, domain.ErrUpstreamUnavailable},
		{http.StatusTeapot, httpfetch.KindUnexpected, domain.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":"x"}`))
		}))

		f := httpfetch.New(httpfetch.Config{}, nil, srv.Client())
		_, err := f.Get(context.Background(), "k", srv.URL)
		srv.Close()

		var upstreamErr *httpfetch.UpstreamError
		require.True(t, errors.As(err, &upstreamErr), "status %d", tt.status)
		assert.Equal(t, tt.kind, upstreamErr.Kind)
		assert.Equal(t, tt.status, upstreamErr.StatusCode)
		assert.ErrorIs(t, err, tt.sentinel)
		assert.Equal(t, `{"error":"x"}`, string(upstreamErr.Body))
		if tt.status == http.StatusTooManyRequests {
			assert.Equal(t, 7*time.Second, upstreamErr.RetryAfter)
		}
	}
}

func TestGet_TimeoutIsClassified(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	f := httpfetch.New(httpfetch.Config{Timeout: 50 * time.Millisecond}, nil, srv.Client())
	_, err := f.Get(context.Background(), "k", srv.URL)

	assert.True(t, httpfetch.IsKind(err, httpfetch.KindTimeout), "err = %v", err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_ParentDeadlineStaysContextError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := httpfetch.New(httpfetch.Config{Timeout: 5 * time.Second}, nil, srv.Client())
	_, err := f.Get(ctx, "k", srv.URL)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_LimiterErrorStopsRequest(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	f := httpfetch.New(httpfetch.Config{}, &countingLimiter{err: context.Canceled}, srv.Client())
	_, err := f.Get(context.Background(), "k", srv.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestGet_TruncatesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	f := httpfetch.New(httpfetch.Config{MaxBodySize: 10}, nil, srv.Client())
	resp, err := f.Get(context.Background(), "k", srv.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 10)
	assert.True(t, resp.Truncated)
}

func TestGetJSON_ParseError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	f := httpfetch.New(httpfetch.Config{}, nil, srv.Client())
	var out map[string]any
	err := f.GetJSON(context.Background(), "k", srv.URL, &out)

	assert.True(t, httpfetch.IsKind(err, httpfetch.KindParse))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
