package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindGone        Kind = "gone"
	KindUpstream    Kind = "upstream_failure"
	KindNetwork     Kind = "network"
	KindTimeout     Kind = "timeout"
	KindParse       Kind = "parse_error"
	KindUnexpected  Kind = "unexpected"
)

// UpstreamError is a classified failure talking to an external source. It
// matches the domain sentinel for its kind under errors.Is.
type UpstreamError struct {
	Kind       Kind
	StatusCode int
	URL        string
	Cause      error
	// RetryAfter is parsed from a 429 or 503 response when present.
	RetryAfter time.Duration
	// Body holds the first bytes of an error response for callers that inspect it.
	Body []byte
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s: %v for %s", e.Kind, e.Cause, e.URL)
}

func (e *UpstreamError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func (e *UpstreamError) sentinel() error {
	switch e.Kind {
	case KindRateLimited:
		return domain.ErrRateLimited
	case KindTimeout:
		return domain.ErrTimeout
	default:
		return domain.ErrUpstreamUnavailable
	}
}

// ClassifyStatus builds an UpstreamError from a non-2xx response.
func ClassifyStatus(resp *http.Response, url string) *UpstreamError {
	e := ClassifyStatusCode(resp.StatusCode, url)
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

// ClassifyStatusCode builds an UpstreamError from a bare status code.
func ClassifyStatusCode(code int, url string) *UpstreamError {
	e := &UpstreamError{StatusCode: code, URL: url, Cause: fmt.Errorf("HTTP %d", code)}

	switch {
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case code == http.StatusForbidden:
		e.Kind = KindForbidden
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case code == http.StatusGone:
		e.Kind = KindGone
	case code >= 500 && code <= 599:
		e.Kind = KindUpstream
	default:
		e.Kind = KindUnexpected
	}
	return e
}

// ClassifyNetwork wraps a transport failure, separating timeouts.
func ClassifyNetwork(cause error, url string) *UpstreamError {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(cause, context.DeadlineExceeded) || (errors.As(cause, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &UpstreamError{Kind: kind, URL: url, Cause: cause}
}

// ClassifyRequest classifies a transport failure of one request made under
// parent. A deadline that expired while parent is still live belongs to the
// request alone, so the result no longer matches context.DeadlineExceeded.
func ClassifyRequest(parent context.Context, cause error, url string) *UpstreamError {
	e := ClassifyNetwork(cause, url)
	if e.Kind == KindTimeout && parent.Err() == nil {
		e.Cause = errors.New(cause.Error())
	}
	return e
}

// ClassifyParse wraps a decoding failure.
func ClassifyParse(cause error, url string) *UpstreamError {
	return &UpstreamError{Kind: KindParse, URL: url, Cause: cause}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
