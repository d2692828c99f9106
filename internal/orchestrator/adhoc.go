package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"net/url"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

// StartCustom accepts an ad-hoc crawl of one blog post, video or playlist.
// The job runs under the ad-hoc timeout and carries the parsed candidates
// as its result.
func (o *Orchestrator) StartCustom(req domain.CustomCrawlRequest) (*domain.CrawlJob, error) {
	if _, err := domain.ParseCustomCrawlKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if err := validateTarget(req.Target); err != nil {
		return nil, err
	}

	srcType := domain.SourceVideo
	if req.Kind == domain.CustomBlog {
		srcType = domain.SourceBlog
	}
	src, err := o.sourceOfType(srcType)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Kind == domain.CustomBlog && o.deps.Pages == nil,
		req.Kind != domain.CustomBlog && o.deps.Videos == nil:
		return nil, fmt.Errorf("%w: %s crawls are not configured", domain.ErrInvalidOperation, req.Kind)
	}

	return o.launch(domain.OpCustomCrawl, o.cfg.AdHocTimeout, func(ctx context.Context, ex *execution) error {
		return o.runCustom(ctx, ex, src, req)
	})
}

func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", domain.ErrInvalidURL, raw)
	}
	return nil
}

// sourceOfType returns the first configured source of t. Ad-hoc items are
// stored under it.
func (o *Orchestrator) sourceOfType(t domain.SourceType) (domain.ContentSource, error) {
	for _, src := range o.cfg.Sources {
		if src.Type == t {
			return src, nil
		}
	}
	return domain.ContentSource{}, fmt.Errorf("%w: no %s source configured", domain.ErrInvalidOperation, t)
}

func (o *Orchestrator) runCustom(ctx context.Context, ex *execution, src domain.ContentSource, req domain.CustomCrawlRequest) error {
	ex.report(0, string(req.Kind), "crawling "+req.Target)

	var (
		seq   iter.Seq2[domain.Candidate, error]
		limit = 1
	)
	switch req.Kind {
	case domain.CustomBlog:
		cand, err := o.deps.Pages.CrawlURL(ctx, src, req.Target)
		if err != nil {
			return err
		}
		seq = single(cand)
	case domain.CustomVideo:
		cand, err := o.deps.Videos.CrawlVideo(ctx, src, req.Target)
		if err != nil {
			return err
		}
		seq = single(cand)
	case domain.CustomPlaylist:
		limit = req.Limit
		if limit <= 0 {
			limit = o.cfg.PlaylistLimit
		}
		var err error
		if seq, err = o.deps.Videos.CrawlPlaylist(ctx, src, req.Target, limit); err != nil {
			return err
		}
	}

	var stats domain.CrawlStats
	for cand, err := range seq {
		if err != nil {
			if crawler.IsTerminal(err) {
				ex.recordSource(src.ID, stats)
				return err
			}
			stats.Attempted++
			stats.Failed++
			ex.log.Warn("Candidate failed", logger.Error(err))
			continue
		}

		ex.mu.Lock()
		ex.results = append(ex.results, cand)
		ex.mu.Unlock()

		if req.DryRun {
			continue
		}
		if err := o.store(ctx, src.ID, cand, &stats); err != nil {
			ex.recordSource(src.ID, stats)
			return err
		}
		ex.recordSource(src.ID, stats)
		ex.report(fullSpan.at(fraction(stats.Attempted, limit)), string(req.Kind),
			fmt.Sprintf("stored %d of up to %d items", stats.Attempted, limit))
	}

	ex.recordSource(src.ID, stats)
	return nil
}

func single(cand domain.Candidate) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		yield(cand, nil)
	}
}
