package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// ErrMalformedResponse marks model output that is not a complete assessment.
// It wraps ErrUpstreamUnavailable, so the call is retried.
var ErrMalformedResponse = fmt.Errorf("%w: malformed analysis response", domain.ErrUpstreamUnavailable)

type qualityScores struct {
	TechnicalDepth *float64 `mapstructure:"technical_depth"`
	PracticalValue *float64 `mapstructure:"practical_value"`
	Clarity        *float64 `mapstructure:"clarity_score"`
	Currency       *float64 `mapstructure:"up_to_dateness"`
}

type assessment struct {
	Summary              string        `mapstructure:"summary"`
	Difficulty           string        `mapstructure:"difficulty_level"`
	Scores               qualityScores `mapstructure:"quality_scores"`
	Services             []string      `mapstructure:"aws_services"`
	Topics               []string      `mapstructure:"topics"`
	Categories           []string      `mapstructure:"categories"`
	KeyTakeaways         []string      `mapstructure:"key_takeaways"`
	TargetAudience       string        `mapstructure:"target_audience"`
	EstimatedReadingTime int           `mapstructure:"estimated_reading_time"`
}

// ParseResponse decodes model output into a score bundle. Numbers encoded as
// strings are accepted; missing or out-of-range scores are rejected.
func ParseResponse(text string) (*domain.QualityScoreBundle, error) {
	raw, err := jsonObject(text)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var a assessment
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &a,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	scores, err := a.Scores.validate()
	if err != nil {
		return nil, err
	}

	bundle := domain.NewQualityScoreBundle(scores, domain.ParseDifficulty(strings.ToLower(a.Difficulty)), textutil.Sanitize(a.Summary))
	bundle.Services = textutil.Dedupe(a.Services)
	bundle.Topics = a.Topics
	bundle.Categories = a.Categories
	bundle.KeyTakeaways = a.KeyTakeaways
	bundle.TargetAudience = a.TargetAudience
	bundle.EstimatedReadingMinutes = a.EstimatedReadingTime
	return bundle, nil
}

func (q qualityScores) validate() (domain.Scores, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"technical_depth", q.TechnicalDepth},
		{"practical_value", q.PracticalValue},
		{"clarity_score", q.Clarity},
		{"up_to_dateness", q.Currency},
	}
	for _, f := range fields {
		if f.v == nil {
			return domain.Scores{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, f.name)
		}
		if *f.v < 0 || *f.v > 1 {
			return domain.Scores{}, fmt.Errorf("%w: %s=%v outside [0,1]", ErrMalformedResponse, f.name, *f.v)
		}
	}
	return domain.Scores{
		TechnicalDepth: *q.TechnicalDepth,
		PracticalValue: *q.PracticalValue,
		Clarity:        *q.Clarity,
		Currency:       *q.Currency,
	}, nil
}

// jsonObject strips code fences and surrounding prose from model output.
func jsonObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, errors.New("no json object"))
	}
	return text[start : end+1], nil
}
