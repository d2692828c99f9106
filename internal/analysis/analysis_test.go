package analysis_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/analysis"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

const goodAssessment = "```json\n" + `{
  "summary": "Shows how to deploy containers on ECS.",
  "difficulty_level": "Advanced",
  "quality_scores": {"technical_depth": "0.8", "practical_value": 0.9, "clarity_score": 0.7, "up_to_dateness": 0.6},
  "aws_services": ["ECS", "ecs", "Fargate"],
  "topics": ["containers"],
  "estimated_reading_time": 7
}` + "\n```"

func messageJSON(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-haiku-20240307",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
	})
	require.NoError(t, err)
	return body
}

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newAnalyzer(srv *httptest.Server, threshold int) *analysis.ClaudeAnalyzer {
	return analysis.NewClaude(analysis.ClaudeConfig{
		APIKey:           "test",
		BaseURL:          srv.URL,
		BreakerThreshold: threshold,
	}, nil, logger.NewNop())
}

func apiError(status int, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"`+kind+`","message":"nope"}}`)
	}
}

func TestAnalyze_ParsesAssessment(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku-20240307", req.Model)
		assert.Equal(t, 2048, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content[0].Text, "Title: Running ECS")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(messageJSON(t, goodAssessment))
	})

	res, err := newAnalyzer(srv, 5).Analyze(context.Background(), analysis.Request{Title: "Running ECS", Body: "body"})
	require.NoError(t, err)

	q := res.Quality
	assert.InDelta(t, 0.8, q.TechnicalDepth, 1e-9)
	assert.InDelta(t, 0.75, q.Overall, 1e-9)
	assert.Equal(t, domain.DifficultyAdvanced, q.Difficulty)
	assert.Equal(t, []string{"ecs", "fargate"}, q.Services)
	assert.Equal(t, 7, q.EstimatedReadingMinutes)
	assert.Equal(t, int64(20), res.OutputTokens)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		kind      string
		want      error
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", domain.ErrRateLimited, true},
		{"overloaded", 529, "overloaded_error", domain.ErrRateLimited, true},
		{"server error", http.StatusInternalServerError, "api_error", domain.ErrUpstreamUnavailable, true},
		{"bad request", http.StatusBadRequest, "invalid_request_error", domain.ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newServer(t, apiError(tt.status, tt.kind))
			_, err := newAnalyzer(srv, 5).Analyze(context.Background(), analysis.Request{Title: "x"})
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestAnalyze_MalformedResponseIsRetryable(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(messageJSON(t, `{"summary":"no scores"}`))
	})

	_, err := newAnalyzer(srv, 5).Analyze(context.Background(), analysis.Request{Title: "x"})
	require.ErrorIs(t, err, analysis.ErrMalformedResponse)
	assert.True(t, domain.IsRetryable(err))
}

func TestAnalyze_BreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	srv, calls := newServer(t, apiError(http.StatusServiceUnavailable, "api_error"))
	a := newAnalyzer(srv, 2)

	for range 2 {
		_, err := a.Analyze(context.Background(), analysis.Request{Title: "x"})
		require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	}
	_, err := a.Analyze(context.Background(), analysis.Request{Title: "x"})
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	_, err := analysis.Disabled{}.Analyze(context.Background(), analysis.Request{})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.False(t, domain.IsRetryable(err))
}

func TestParseResponse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no json":      "I cannot help with that",
		"out of range": `{"quality_scores":{"technical_depth":1.5,"practical_value":0.5,"clarity_score":0.5,"up_to_dateness":0.5}}`,
		"missing":      `{"quality_scores":{"technical_depth":0.5,"practical_value":0.5,"clarity_score":0.5}}`,
		"not a number": `{"quality_scores":{"technical_depth":"high","practical_value":0.5,"clarity_score":0.5,"up_to_dateness":0.5}}`,
	}
	for name, text := range cases {
		_, err := analysis.ParseResponse(text)
		assert.ErrorIs(t, err, analysis.ErrMalformedResponse, name)
	}
}

func TestParseResponse_UnknownDifficultyIsIntermediate(t *testing.T) {
	t.Parallel()

	q, err := analysis.ParseResponse(`Here you go: {"difficulty_level":"expert","quality_scores":{"technical_depth":0,"practical_value":0,"clarity_score":0,"up_to_dateness":0}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyIntermediate, q.Difficulty)
	assert.Zero(t, q.Overall)
}

func TestBuildPrompt_TruncatesBody(t *testing.T) {
	t.Parallel()

	p := analysis.BuildPrompt(analysis.Request{Title: "T", Description: "D", Body: strings.Repeat("a", 5000) + "TAIL"})
	assert.Contains(t, p, "Title: T")
	assert.Contains(t, p, strings.Repeat("a", 4000))
	assert.NotContains(t, p, "TAIL")
}
