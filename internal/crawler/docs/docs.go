// Package docs crawls a documentation site through its sitemap index.
package docs

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/extract"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

const (
	author           = "AWS Documentation"
	untitled         = "Untitled"
	detectTextLength = 1000
)

// ServicePatterns detects AWS services on documentation pages.
var ServicePatterns = crawler.ServicePatterns{
	"ec2":            {"Amazon EC2", "Elastic Compute Cloud"},
	"s3":             {"Amazon S3", "Simple Storage Service"},
	"lambda":         {"AWS Lambda", "Lambda function"},
	"rds":            {"Amazon RDS", "Relational Database Service"},
	"dynamodb":       {"Amazon DynamoDB", "DynamoDB"},
	"cloudformation": {"AWS CloudFormation", "CloudFormation"},
	"ecs":            {"Amazon ECS", "Elastic Container Service"},
	"eks":            {"Amazon EKS", "Elastic Kubernetes Service"},
	"vpc":            {"Amazon VPC", "Virtual Private Cloud"},
	"iam":            {"AWS IAM", "Identity and Access Management"},
	"cloudwatch":     {"Amazon CloudWatch", "CloudWatch"},
	"sns":            {"Amazon SNS", "Simple Notification Service"},
	"sqs":            {"Amazon SQS", "Simple Queue Service"},
}

var serviceMatcher = ServicePatterns.Compile()

// Config tunes the docs crawler.
type Config struct {
	// MaxSitemaps caps how many child sitemaps one crawl reads.
	MaxSitemaps     int
	MaxContentChars int
	MaxBodySize     int
	RequestTimeout  time.Duration
}

// Crawler reads sitemaps with the shared fetcher and pages with colly.
type Crawler struct {
	fetcher *httpfetch.Fetcher
	cfg     Config
	log     logger.Logger
}

// New returns a docs crawler.
func New(fetcher *httpfetch.Fetcher, cfg Config, log logger.Logger) *Crawler {
	if cfg.MaxSitemaps <= 0 {
		cfg.MaxSitemaps = 10
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 50000
	}
	return &Crawler{fetcher: fetcher, cfg: cfg, log: log.With(logger.Component("docs_crawler"))}
}

func (c *Crawler) Type() domain.SourceType { return domain.SourceDocs }

// Crawl walks the sitemap index of src. A failing child sitemap or page is a
// per-item failure; a failing index ends the crawl after one failure.
func (c *Crawler) Crawl(ctx context.Context, src domain.ContentSource, since time.Time, limit int) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		indexURL := src.FeedURL
		if indexURL == "" {
			indexURL = strings.TrimRight(src.BaseURL, "/") + "/sitemap_index.xml"
		}

		sitemaps, entries, err := c.readSitemap(ctx, src.ID, indexURL)
		if err != nil {
			yield(domain.Candidate{}, crawler.ItemFailure(indexURL, err))
			return
		}

		pages := c.newCollector(ctx)
		emitted := 0

		// emit returns false once the crawl must stop.
		emit := func(entries []Entry) bool {
			for _, entry := range entries {
				if limit > 0 && emitted >= limit {
					return false
				}
				if !crawler.Include(entry.LastMod, since) {
					continue
				}
				emitted++

				cand, err := c.scrape(ctx, pages, src, entry)
				if err != nil {
					if !yield(domain.Candidate{}, crawler.ItemFailure(entry.Loc, err)) || crawler.IsTerminal(err) {
						return false
					}
					continue
				}
				if !yield(cand, nil) {
					return false
				}
			}
			return true
		}

		if sitemaps == nil {
			// the configured URL is a plain urlset
			emit(entries)
			return
		}

		selected := make([]string, 0, len(sitemaps))
		for _, s := range sitemaps {
			if matchesServices(s, src.Options.Services) {
				selected = append(selected, s)
			}
		}
		if len(selected) > c.cfg.MaxSitemaps {
			selected = selected[:c.cfg.MaxSitemaps]
		}
		c.log.Info("Sitemaps selected",
			logger.String("source", src.ID),
			logger.Int("sitemaps", len(selected)),
			logger.Strings("services", src.Options.Services),
		)

		for _, sitemapURL := range selected {
			_, entries, err := c.readSitemap(ctx, src.ID, sitemapURL)
			if err != nil {
				if !yield(domain.Candidate{}, crawler.ItemFailure(sitemapURL, err)) || crawler.IsTerminal(err) {
					return
				}
				continue
			}
			if !emit(entries) {
				return
			}
		}
	}
}

func (c *Crawler) readSitemap(ctx context.Context, key, url string) ([]string, []Entry, error) {
	resp, err := c.fetcher.Get(ctx, key, url)
	if err != nil {
		return nil, nil, err
	}
	children, entries, err := parseSitemap(resp.Body)
	if err != nil {
		return nil, nil, httpfetch.ClassifyParse(err, url)
	}
	return children, entries, nil
}

// pageCollector wraps a synchronous colly collector; its callbacks have run
// by the time Visit returns.
type pageCollector struct {
	ctx       context.Context
	collector *colly.Collector
	rules     extract.Rules
	page      *extract.Page
	err       error
}

func (c *Crawler) newCollector(ctx context.Context) *pageCollector {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if ua := c.fetcher.UserAgent(); ua != "" {
		opts = append(opts, colly.UserAgent(ua))
	}
	if c.cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(c.cfg.MaxBodySize))
	}

	pc := &pageCollector{
		collector: colly.NewCollector(opts...),
		rules:     extract.DocsRules(c.cfg.MaxContentChars),
	}
	pc.collector.SetClient(c.fetcher.Client())
	if c.cfg.RequestTimeout > 0 {
		pc.collector.SetRequestTimeout(c.cfg.RequestTimeout)
	}

	pc.collector.OnHTML("html", func(e *colly.HTMLElement) {
		pc.page = extract.Extract(e.DOM, pc.rules)
	})
	pc.collector.OnError(func(r *colly.Response, err error) {
		url := r.Request.URL.String()
		if r.StatusCode > 0 {
			pc.err = httpfetch.ClassifyStatusCode(r.StatusCode, url)
			return
		}
		pc.err = httpfetch.ClassifyRequest(ctx, err, url)
	})
	pc.ctx = ctx
	return pc
}

func (pc *pageCollector) visit(url string) (*extract.Page, error) {
	pc.page, pc.err = nil, nil
	if err := pc.collector.Visit(url); err != nil && pc.err == nil {
		pc.err = httpfetch.ClassifyRequest(pc.ctx, err, url)
	}
	return pc.page, pc.err
}

func (c *Crawler) scrape(ctx context.Context, pages *pageCollector, src domain.ContentSource, entry Entry) (domain.Candidate, error) {
	if err := c.fetcher.Acquire(ctx, src.ID); err != nil {
		return domain.Candidate{}, err
	}

	page, err := pages.visit(entry.Loc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Candidate{}, ctxErr
		}
		return domain.Candidate{}, err
	}
	if page == nil || page.Body == "" {
		return domain.Candidate{}, httpfetch.ClassifyParse(errors.New("no readable content"), entry.Loc)
	}

	title := page.Title
	if title == "" {
		title = untitled
	}

	c.log.Debug("Scraped page", logger.String("source", src.ID), logger.String("url", entry.Loc))

	return domain.Candidate{
		URL:         entry.Loc,
		SourceID:    src.ID,
		SourceType:  domain.SourceDocs,
		ContentType: domain.ContentDocumentation,
		Title:       title,
		Description: page.Description,
		Body:        page.Body,
		Author:      author,
		PublishedAt: entry.LastMod,
		UpdatedAt:   entry.LastMod,
		Tags:        page.Keywords,
		Services:    serviceMatcher.Detect(entry.Loc, title+" "+textutil.Truncate(page.Body, detectTextLength)),
		Categories:  []string{"documentation"},
	}, nil
}
