package domain

import (
	"fmt"
	"time"
)

// SourceType tags which crawler variant handles a source.
type SourceType string

const (
	SourceDocs  SourceType = "docs"
	SourceBlog  SourceType = "blog"
	SourceVideo SourceType = "video"
)

// ParseSourceType validates a source type tag.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(s); t {
	case SourceDocs, SourceBlog, SourceVideo:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidOperation, s)
	}
}

// SourceOptions scopes a crawl within one source.
type SourceOptions struct {
	// Services limits a docs crawl to sitemaps containing /<service>/.
	Services []string `json:"services,omitempty"`
	// Categories selects blog feeds.
	Categories []string `json:"categories,omitempty"`
	// Playlists selects video collections by playlist id.
	Playlists        []string `json:"playlists,omitempty"`
	FetchFullContent bool     `json:"fetch_full_content,omitempty"`
	FetchTranscripts bool     `json:"fetch_transcripts,omitempty"`
	// PerCollectionLimit caps items per feed or playlist. Zero means no per-collection cap.
	PerCollectionLimit int `json:"per_collection_limit,omitempty"`
}

// ContentSource is one configured external origin.
type ContentSource struct {
	ID                string        `json:"id"                     db:"id"`
	Name              string        `json:"name"                   db:"name"`
	Type              SourceType    `json:"type"                   db:"source_type"`
	BaseURL           string        `json:"base_url"               db:"base_url"`
	FeedURL           string        `json:"feed_url,omitempty"     db:"feed_url"`
	Cadence           time.Duration `json:"cadence"                db:"-"`
	RequestsPerMinute int           `json:"requests_per_minute"    db:"requests_per_minute"`
	LastCrawled       *time.Time    `json:"last_crawled,omitempty" db:"last_crawled"`
	Active            bool          `json:"active"                 db:"active"`
	Options           SourceOptions `json:"options"                db:"-"`
}

// WithScope returns a copy of s whose options are narrowed by plan. Empty
// plan lists keep the source's own scope. Fetch flags are enabled by either
// the source or the plan.
func (s ContentSource) WithScope(plan SourceOptions) ContentSource {
	out := s
	if len(plan.Services) > 0 {
		out.Options.Services = plan.Services
	}
	if len(plan.Categories) > 0 {
		out.Options.Categories = plan.Categories
	}
	if len(plan.Playlists) > 0 {
		out.Options.Playlists = plan.Playlists
	}
	if plan.PerCollectionLimit > 0 {
		out.Options.PerCollectionLimit = plan.PerCollectionLimit
	}
	out.Options.FetchFullContent = s.Options.FetchFullContent || plan.FetchFullContent
	out.Options.FetchTranscripts = s.Options.FetchTranscripts || plan.FetchTranscripts
	return out
}
