// Package blog crawls syndication feeds, one feed per configured category.
package blog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/extract"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

const (
	defaultAuthor   = "AWS Team"
	untitled        = "Untitled"
	generalCategory = "general"
)

// feedSlugs lists categories whose feed path differs from the category name.
var feedSlugs = map[string]string{
	"networking":    "networking-and-content-delivery",
	"aws-news":      "aws",
	"public-sector": "publicsector",
}

// ServicePatterns detects AWS services in post titles, summaries and tags.
var ServicePatterns = crawler.ServicePatterns{
	"ec2":            {"EC2", "Elastic Compute"},
	"s3":             {"S3", "Simple Storage"},
	"lambda":         {"Lambda", "serverless function"},
	"rds":            {"RDS", "Relational Database"},
	"dynamodb":       {"DynamoDB"},
	"ecs":            {"ECS", "Elastic Container Service"},
	"eks":            {"EKS", "Elastic Kubernetes"},
	"vpc":            {"VPC", "Virtual Private Cloud"},
	"cloudformation": {"CloudFormation", "IaC"},
	"cloudwatch":     {"CloudWatch", "monitoring"},
	"iam":            {"IAM", "Identity and Access"},
}

var serviceMatcher = ServicePatterns.Compile()

// ErrMalformedDate marks a feed entry whose date is present but unparseable.
var ErrMalformedDate = errors.New("malformed entry date")

// Config tunes the blog crawler.
type Config struct {
	MaxContentChars int
}

// Crawler parses feeds with gofeed and optionally dereferences each entry.
type Crawler struct {
	fetcher *httpfetch.Fetcher
	cfg     Config
	log     logger.Logger
}

// New returns a blog crawler.
func New(fetcher *httpfetch.Fetcher, cfg Config, log logger.Logger) *Crawler {
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 50000
	}
	return &Crawler{fetcher: fetcher, cfg: cfg, log: log.With(logger.Component("blog_crawler"))}
}

func (c *Crawler) Type() domain.SourceType { return domain.SourceBlog }

type feedRef struct {
	category string
	url      string
}

// FeedURL returns the feed of category under baseURL.
func FeedURL(baseURL, category string) string {
	slug := category
	if s, ok := feedSlugs[category]; ok {
		slug = s
	}
	return strings.TrimRight(baseURL, "/") + "/" + slug + "/feed/"
}

func feedsFor(src domain.ContentSource) []feedRef {
	if len(src.Options.Categories) == 0 {
		if src.FeedURL != "" {
			return []feedRef{{category: generalCategory, url: src.FeedURL}}
		}
		return nil
	}
	refs := make([]feedRef, 0, len(src.Options.Categories))
	for _, cat := range src.Options.Categories {
		refs = append(refs, feedRef{category: cat, url: FeedURL(src.BaseURL, cat)})
	}
	return refs
}

// Crawl yields entries of every feed of src published at or after since.
func (c *Crawler) Crawl(ctx context.Context, src domain.ContentSource, since time.Time, limit int) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		emitted := 0
		parser := gofeed.NewParser()

		for _, ref := range feedsFor(src) {
			feed, err := c.fetchFeed(ctx, parser, src.ID, ref.url)
			if err != nil {
				if !yield(domain.Candidate{}, crawler.ItemFailure(ref.url, err)) || crawler.IsTerminal(err) {
					return
				}
				continue
			}
			c.log.Info("Feed parsed",
				logger.String("source", src.ID),
				logger.String("category", ref.category),
				logger.Int("entries", len(feed.Items)),
			)

			perFeed := 0
			for _, item := range feed.Items {
				if limit > 0 && emitted >= limit {
					return
				}
				if n := src.Options.PerCollectionLimit; n > 0 && perFeed >= n {
					break
				}

				link, published, updated, err := entryHeader(item)
				if err != nil {
					emitted++
					perFeed++
					if !yield(domain.Candidate{}, crawler.ItemFailure(link, err)) {
						return
					}
					continue
				}
				if !crawler.Include(published, since) {
					continue
				}

				emitted++
				perFeed++
				cand, err := c.candidate(ctx, src, ref.category, item, link, published, updated)
				if err != nil {
					yield(domain.Candidate{}, crawler.ItemFailure(link, err))
					return
				}
				if !yield(cand, nil) {
					return
				}
			}
		}
	}
}

func (c *Crawler) fetchFeed(ctx context.Context, parser *gofeed.Parser, key, url string) (*gofeed.Feed, error) {
	resp, err := c.fetcher.Get(ctx, key, url)
	if err != nil {
		return nil, err
	}
	feed, err := parser.ParseString(string(resp.Body))
	if err != nil {
		return nil, httpfetch.ClassifyParse(err, url)
	}
	return feed, nil
}

// entryHeader validates the link and dates of a feed entry. The published
// date falls back to the updated date.
func entryHeader(item *gofeed.Item) (link string, published, updated *time.Time, err error) {
	link = itemLink(item)
	if link == "" {
		return "", nil, nil, fmt.Errorf("%w: entry %q has no link", domain.ErrUpstreamUnavailable, item.Title)
	}
	if published, err = entryDate(item.Published, item.PublishedParsed); err != nil {
		return link, nil, nil, err
	}
	if updated, err = entryDate(item.Updated, item.UpdatedParsed); err != nil {
		return link, nil, nil, err
	}
	if published == nil {
		published = updated
	}
	return link, published, updated, nil
}

// candidate builds the record of an accepted entry. It only fails when the
// optional page fetch hits a terminal error.
func (c *Crawler) candidate(
	ctx context.Context,
	src domain.ContentSource,
	category string,
	item *gofeed.Item,
	link string,
	published, updated *time.Time,
) (domain.Candidate, error) {
	title := textutil.Sanitize(item.Title)
	if title == "" {
		title = untitled
	}
	description := plainText(item.Description)

	var tags []string
	for _, cat := range item.Categories {
		if t := textutil.Sanitize(cat); t != "" {
			tags = append(tags, t)
		}
	}

	body := plainText(item.Content)
	if src.Options.FetchFullContent {
		page, err := c.fetchPage(ctx, src.ID, link)
		switch {
		case err != nil && crawler.IsTerminal(err):
			return domain.Candidate{}, err
		case err != nil:
			c.log.Warn("Full content unavailable, using summary",
				logger.String("source", src.ID),
				logger.String("url", link),
				logger.Error(err),
			)
		default:
			body = page.Body
		}
	}
	if body == "" {
		body = description
	}

	return domain.Candidate{
		URL:         link,
		SourceID:    src.ID,
		SourceType:  domain.SourceBlog,
		ContentType: domain.ContentBlogPost,
		Title:       title,
		Description: description,
		Body:        textutil.Truncate(body, c.cfg.MaxContentChars),
		Author:      entryAuthor(item),
		PublishedAt: published,
		UpdatedAt:   updated,
		Tags:        tags,
		Services:    serviceMatcher.Detect("", title+" "+description+" "+strings.Join(tags, " ")),
		Categories:  []string{category},
	}, nil
}

// CrawlURL parses a single post page for ad-hoc crawls.
func (c *Crawler) CrawlURL(ctx context.Context, src domain.ContentSource, url string) (domain.Candidate, error) {
	page, err := c.fetchPage(ctx, src.ID, url)
	if err != nil {
		return domain.Candidate{}, err
	}
	if page.Body == "" {
		return domain.Candidate{}, httpfetch.ClassifyParse(errors.New("no readable content"), url)
	}

	title := page.Title
	if title == "" {
		title = untitled
	}
	author := page.Author
	if author == "" {
		author = defaultAuthor
	}

	return domain.Candidate{
		URL:         url,
		SourceID:    src.ID,
		SourceType:  domain.SourceBlog,
		ContentType: domain.ContentBlogPost,
		Title:       title,
		Description: page.Description,
		Body:        page.Body,
		Author:      author,
		PublishedAt: page.PublishedAt,
		Services:    serviceMatcher.Detect("", title+" "+page.Description),
		Categories:  []string{categoryFromURL(url)},
	}, nil
}

func (c *Crawler) fetchPage(ctx context.Context, key, url string) (*extract.Page, error) {
	resp, err := c.fetcher.Get(ctx, key, url)
	if err != nil {
		return nil, err
	}
	page, err := extract.FromHTML(resp.Body, extract.BlogRules(c.cfg.MaxContentChars))
	if err != nil {
		return nil, httpfetch.ClassifyParse(err, url)
	}
	return page, nil
}

// itemLink prefers the explicit link and falls back to a URL-shaped GUID.
func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, "http") {
		return item.GUID
	}
	return ""
}

// entryDate returns nil for an absent date and ErrMalformedDate for one gofeed could not parse.
func entryDate(raw string, parsed *time.Time) (*time.Time, error) {
	if parsed != nil {
		t := parsed.UTC()
		return &t, nil
	}
	if strings.TrimSpace(raw) != "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	return nil, nil
}

func entryAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return defaultAuthor
}

func categoryFromURL(url string) string {
	lower := strings.ToLower(url)
	for _, cat := range categoryOrder {
		slug := cat
		if s, ok := feedSlugs[cat]; ok {
			slug = s
		}
		if strings.Contains(lower, "/blogs/"+slug+"/") {
			return cat
		}
	}
	return generalCategory
}

var categoryOrder = []string{
	"architecture", "devops", "security", "containers", "database", "compute",
	"networking", "storage", "big-data", "machine-learning", "mobile", "developer",
	"opensource", "aws-news", "startups", "public-sector", "apn", "gametech", "iot",
}

// plainText strips markup from a feed summary or content field.
func plainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	if !strings.ContainsRune(html, '<') {
		return textutil.Sanitize(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return textutil.Sanitize(html)
	}
	return textutil.Sanitize(doc.Text())
}
