package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/ratelimit"
)

const statusOverloaded = 529

// ClaudeConfig configures the Anthropic-backed analyzer.
type ClaudeConfig struct {
	APIKey           string
	Model            string
	BaseURL          string
	MaxTokens        int
	Timeout          time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// ClaudeAnalyzer calls the Messages API once per Analyze. Retries are left
// to the caller; the SDK's own retries are disabled.
type ClaudeAnalyzer struct {
	client  anthropic.Client
	cfg     ClaudeConfig
	limiter ratelimit.Acquirer
	breaker *circuitbreaker.Breaker
	log     logger.Logger
}

// NewClaude returns an analyzer. limiter may be nil.
func NewClaude(cfg ClaudeConfig, limiter ratelimit.Acquirer, log logger.Logger) *ClaudeAnalyzer {
	if cfg.Model == "" {
		cfg.Model = "claude-3-haiku-20240307"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	log = log.With(logger.Component("claude_analyzer"))
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerThreshold,
		Timeout:          cfg.BreakerTimeout,
		IsFailure:        domain.IsRetryable,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn("Analysis circuit changed state",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	return &ClaudeAnalyzer{
		client:  anthropic.NewClient(opts...),
		cfg:     cfg,
		limiter: limiter,
		breaker: breaker,
		log:     log,
	}
}

// Analyze waits for an analysis slot, calls the model and parses its answer.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if a.limiter != nil {
		if err := a.limiter.Acquire(ctx, LimiterKey); err != nil {
			return nil, err
		}
	}

	var result *Result
	err := a.breaker.Execute(ctx, func() error {
		var callErr error
		result, callErr = a.call(ctx, req)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return result, err
}

func (a *ClaudeAnalyzer) call(ctx context.Context, req Request) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	msg, err := a.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	bundle, err := ParseResponse(text.String())
	if err != nil {
		a.log.Warn("Unparseable analysis response",
			logger.String("title", req.Title),
			logger.Int("chars", text.Len()),
			logger.Error(err),
		)
		return nil, err
	}

	a.log.Debug("Content analyzed",
		logger.String("title", req.Title),
		logger.Float64("quality", bundle.Overall),
		logger.String("difficulty", string(bundle.Difficulty)),
	)
	return &Result{
		Quality:      bundle,
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// classify maps SDK and transport errors onto the domain taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests || code == statusOverloaded:
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case code == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		case code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
		default:
			return fmt.Errorf("%w: %w", domain.ErrInternal, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
}
