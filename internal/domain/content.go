package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentType is the stored classification of an item.
type ContentType string

const (
	ContentDocumentation ContentType = "documentation"
	ContentBlogPost      ContentType = "blog_post"
	ContentVideo         ContentType = "video"
)

// ContentTypeFor maps a source type to the content type its items carry.
func ContentTypeFor(t SourceType) ContentType {
	switch t {
	case SourceBlog:
		return ContentBlogPost
	case SourceVideo:
		return ContentVideo
	default:
		return ContentDocumentation
	}
}

// Metadata holds source-specific attributes.
type Metadata struct {
	VideoID         string   `json:"video_id,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	ViewCount       int64    `json:"view_count,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Channel         string   `json:"channel,omitempty"`
}

// Candidate is a normalized record produced by a crawler before dedup and storage.
type Candidate struct {
	URL         string      `json:"url"`
	SourceID    string      `json:"source_id"`
	SourceType  SourceType  `json:"source_type"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Body        string      `json:"body,omitempty"`
	Author      string      `json:"author,omitempty"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Services    []string    `json:"services,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Metadata    Metadata    `json:"metadata"`
}

// ContentHash is the SHA-256 hex digest of the body. Title and metadata
// changes alone do not change it.
func (c *Candidate) ContentHash() string {
	sum := sha256.Sum256([]byte(c.Body))
	return hex.EncodeToString(sum[:])
}

// Revision returns the newest timestamp the source reported for the candidate.
func (c *Candidate) Revision() *time.Time {
	if c.UpdatedAt != nil && (c.PublishedAt == nil || c.UpdatedAt.After(*c.PublishedAt)) {
		return c.UpdatedAt
	}
	return c.PublishedAt
}

// ContentItem is a stored candidate plus processing state.
type ContentItem struct {
	ID           string `json:"id"`
	CanonicalURL string `json:"canonical_url"`
	Candidate
	ContentHash string              `json:"content_hash"`
	Processed   bool                `json:"processed"`
	ProcessedAt *time.Time          `json:"processed_at,omitempty"`
	Quality     *QualityScoreBundle `json:"quality,omitempty"`
	CrawledAt   time.Time           `json:"crawled_at"`
	ModifiedAt  time.Time           `json:"modified_at"`
}

// Difficulty is the AI-assigned level of an item.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ParseDifficulty normalizes a label, defaulting to intermediate for unknown values.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(s); d {
	case DifficultyBeginner, DifficultyAdvanced:
		return d
	default:
		return DifficultyIntermediate
	}
}

// QualityScoreBundle is the scored analysis of one item. All scores are in [0,1].
type QualityScoreBundle struct {
	TechnicalDepth          float64    `json:"technical_depth"`
	PracticalValue          float64    `json:"practical_value"`
	Clarity                 float64    `json:"clarity_score"`
	Currency                float64    `json:"up_to_dateness"`
	Overall                 float64    `json:"overall"`
	Difficulty              Difficulty `json:"difficulty_level"`
	Summary                 string     `json:"summary"`
	Topics                  []string   `json:"topics,omitempty"`
	Services                []string   `json:"aws_services,omitempty"`
	Categories              []string   `json:"categories,omitempty"`
	KeyTakeaways            []string   `json:"key_takeaways,omitempty"`
	TargetAudience          string     `json:"target_audience,omitempty"`
	EstimatedReadingMinutes int        `json:"estimated_reading_time,omitempty"`
}

// Scores groups the four scored dimensions.
type Scores struct {
	TechnicalDepth float64
	PracticalValue float64
	Clarity        float64
	Currency       float64
}

// NewQualityScoreBundle clamps the dimensions into [0,1] and derives Overall as their mean.
func NewQualityScoreBundle(s Scores, difficulty Difficulty, summary string) *QualityScoreBundle {
	b := &QualityScoreBundle{
		TechnicalDepth: clamp01(s.TechnicalDepth),
		PracticalValue: clamp01(s.PracticalValue),
		Clarity:        clamp01(s.Clarity),
		Currency:       clamp01(s.Currency),
		Difficulty:     difficulty,
		Summary:        summary,
	}
	b.Overall = (b.TechnicalDepth + b.PracticalValue + b.Clarity + b.Currency) / 4
	return b
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// UpsertOutcome reports what a store write did to an item.
type UpsertOutcome string

const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)
