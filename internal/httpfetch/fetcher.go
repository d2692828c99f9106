// Package httpfetch performs rate-limited HTTP GETs against content sources
// and classifies their failures.
package httpfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/ratelimit"
)

const errorBodyLimit = 4 << 10

// Config holds request settings shared by every source.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
}

// Response is a fully read response.
type Response struct {
	StatusCode   int
	Body         []byte
	Header       http.Header
	ETag         string
	LastModified string
	// Truncated is set when the body hit the size cap.
	Truncated bool
}

// NotModified reports a 304 answer to a conditional request.
func (r *Response) NotModified() bool { return r.StatusCode == http.StatusNotModified }

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// WithETag sends If-None-Match.
func WithETag(etag string) RequestOption {
	return func(r *http.Request) {
		if etag != "" {
			r.Header.Set("If-None-Match", etag)
		}
	}
}

// WithIfModifiedSince sends If-Modified-Since.
func WithIfModifiedSince(lastModified string) RequestOption {
	return func(r *http.Request) {
		if lastModified != "" {
			r.Header.Set("If-Modified-Since", lastModified)
		}
	}
}

// WithHeader sets an arbitrary header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Fetcher acquires a rate-limit slot for the source key before every request.
type Fetcher struct {
	client  *http.Client
	limiter ratelimit.Acquirer
	cfg     Config
}

// New returns a Fetcher. A nil client uses a fresh http.Client.
func New(cfg Config, limiter ratelimit.Acquirer, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 << 20
	}
	return &Fetcher{client: client, limiter: limiter, cfg: cfg}
}

// Client exposes the underlying client for collectors that manage their own requests.
func (f *Fetcher) Client() *http.Client { return f.client }

// UserAgent returns the configured user agent.
func (f *Fetcher) UserAgent() string { return f.cfg.UserAgent }

// Acquire waits for a slot for key without issuing a request.
func (f *Fetcher) Acquire(ctx context.Context, key string) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Acquire(ctx, key)
}

// Get fetches url under the budget of key. Non-2xx answers other than 304
// return an *UpstreamError.
func (f *Fetcher) Get(ctx context.Context, key, url string, opts ...RequestOption) (*Response, error) {
	if err := f.Acquire(ctx, key); err != nil {
		return nil, ClassifyNetwork(err, url)
	}

	parent := ctx
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ClassifyRequest(parent, err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstreamErr := ClassifyStatus(resp, url)
		upstreamErr.Body, _ = io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, upstreamErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, ClassifyRequest(parent, err, url)
	}

	out := &Response{
		StatusCode:   resp.StatusCode,
		Header:       resp.Header,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		body = body[:f.cfg.MaxBodySize]
		out.Truncated = true
	}
	out.Body = body
	return out, nil
}

// GetJSON fetches url and decodes the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, key, url string, out any, opts ...RequestOption) error {
	resp, err := f.Get(ctx, key, url, append(opts, WithHeader("Accept", "application/json"))...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return ClassifyParse(err, url)
	}
	return nil
}

// IsKind reports whether err is an UpstreamError of kind k.
func IsKind(err error, k Kind) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.Kind == k
}
