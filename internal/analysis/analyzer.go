// Package analysis scores content with an external language model.
package analysis

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// LimiterKey is the rate limit budget shared by every analysis call.
const LimiterKey = "analysis"

// Request is the text submitted for scoring.
type Request struct {
	Title       string
	Description string
	Body        string
	ContentType domain.ContentType
}

// Result is a parsed analysis.
type Result struct {
	Quality      *domain.QualityScoreBundle
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Analyzer scores one item. Errors wrap domain sentinels so callers can
// decide whether to retry with domain.IsRetryable.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// ErrDisabled is returned by Disabled.
var ErrDisabled = fmt.Errorf("%w: analysis is not configured", domain.ErrInvalidOperation)

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) Analyze(context.Context, Request) (*Result, error) { return nil, ErrDisabled }
