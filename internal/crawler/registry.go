package crawler

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Registry dispatches sources to the crawler registered for their type tag.
type Registry struct {
	crawlers map[domain.SourceType]Crawler
}

// NewRegistry registers each crawler under its Type.
func NewRegistry(crawlers ...Crawler) *Registry {
	r := &Registry{crawlers: make(map[domain.SourceType]Crawler, len(crawlers))}
	for _, c := range crawlers {
		r.crawlers[c.Type()] = c
	}
	return r
}

// For returns the crawler for t.
func (r *Registry) For(t domain.SourceType) (Crawler, error) {
	c, ok := r.crawlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: no crawler for source type %q", domain.ErrNotFound, t)
	}
	return c, nil
}
