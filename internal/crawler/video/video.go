// Package video crawls YouTube playlists through the Data API and optional
// timedtext captions, under a local daily quota.
package video

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

const watchURL = "https://www.youtube.com/watch?v="

var (
	videoIDPattern    = regexp.MustCompile(`(?:v=|youtu\.be/|/shorts/|/embed/)([a-zA-Z0-9_-]{11})`)
	playlistIDPattern = regexp.MustCompile(`list=([a-zA-Z0-9_-]+)`)
)

// ServicePatterns matches AWS services in titles, descriptions and tags.
var ServicePatterns = crawler.ServicePatterns{
	"ec2":            {"EC2", "Elastic Compute"},
	"s3":             {"S3", "Simple Storage"},
	"lambda":         {"Lambda"},
	"rds":            {"RDS", "Relational Database"},
	"dynamodb":       {"DynamoDB"},
	"ecs":            {"ECS", "Container Service"},
	"eks":            {"EKS", "Kubernetes"},
	"fargate":        {"Fargate"},
	"cloudformation": {"CloudFormation"},
	"cloudwatch":     {"CloudWatch"},
	"vpc":            {"VPC"},
}

var serviceMatcher = ServicePatterns.Compile()

// Config configures the video crawler.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptURL      string
	QuotaUnitsPerDay   int
	MaxTranscriptChars int
	ChannelID          string
	// Playlists maps short names used in source scopes to playlist ids.
	Playlists map[string]string
}

// Crawler yields one candidate per playlist video.
type Crawler struct {
	api     *apiClient
	fetcher *httpfetch.Fetcher
	quota   *Quota
	cfg     Config
	log     logger.Logger
}

// New returns a video crawler. The quota counter lives as long as the crawler.
func New(fetcher *httpfetch.Fetcher, cfg Config, log logger.Logger) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.TranscriptURL == "" {
		cfg.TranscriptURL = "https://www.youtube.com/api/timedtext"
	}
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = 45000
	}
	quota := NewQuota(cfg.QuotaUnitsPerDay)
	return &Crawler{
		api:     &apiClient{fetcher: fetcher, quota: quota, apiKey: cfg.APIKey, baseURL: cfg.BaseURL},
		fetcher: fetcher,
		quota:   quota,
		cfg:     cfg,
		log:     log.With(logger.Component("video_crawler")),
	}
}

func (c *Crawler) Type() domain.SourceType { return domain.SourceVideo }

// Quota exposes the daily unit counter.
func (c *Crawler) Quota() *Quota { return c.quota }

// playlists resolves the scoped names of src to ids. With no scope every
// configured playlist is crawled, and failing that the channel uploads.
func (c *Crawler) playlists(src domain.ContentSource) []string {
	names := src.Options.Playlists
	if len(names) == 0 {
		names = slices.Sorted(maps.Keys(c.cfg.Playlists))
	}
	if len(names) == 0 && strings.HasPrefix(c.cfg.ChannelID, "UC") {
		return []string{"UU" + c.cfg.ChannelID[2:]}
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := c.cfg.Playlists[name]; ok {
			ids = append(ids, id)
			continue
		}
		if strings.HasPrefix(name, "PL") || strings.HasPrefix(name, "UU") {
			ids = append(ids, name)
			continue
		}
		c.log.Warn("Unknown playlist skipped", logger.String("source", src.ID), logger.String("playlist", name))
	}
	return ids
}

// Crawl walks every playlist of src, stopping for good on quota exhaustion.
func (c *Crawler) Crawl(ctx context.Context, src domain.ContentSource, since time.Time, limit int) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		remaining := limit
		for _, id := range c.playlists(src) {
			perList := src.Options.PerCollectionLimit
			if remaining > 0 && (perList <= 0 || remaining < perList) {
				perList = remaining
			}

			n, stop := c.walkPlaylist(ctx, src, id, since, perList, yield)
			if stop {
				return
			}
			if limit > 0 {
				remaining -= n
				if remaining <= 0 {
					return
				}
			}
		}
	}
}

// CrawlPlaylist crawls the playlist referenced by a URL such as
// https://www.youtube.com/playlist?list=<id>.
func (c *Crawler) CrawlPlaylist(ctx context.Context, src domain.ContentSource, rawURL string, limit int) (iter.Seq2[domain.Candidate, error], error) {
	m := playlistIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, fmt.Errorf("%w: no playlist id in %q", domain.ErrInvalidURL, rawURL)
	}
	return func(yield func(domain.Candidate, error) bool) {
		c.walkPlaylist(ctx, src, m[1], time.Time{}, limit, yield)
	}, nil
}

// CrawlVideo fetches a single video referenced by a watch, short or youtu.be URL.
func (c *Crawler) CrawlVideo(ctx context.Context, src domain.ContentSource, rawURL string) (domain.Candidate, error) {
	id, err := VideoID(rawURL)
	if err != nil {
		return domain.Candidate{}, err
	}
	details, err := c.api.videos(ctx, src.ID, []string{id})
	if err != nil {
		return domain.Candidate{}, err
	}
	v, ok := details[id]
	if !ok {
		return domain.Candidate{}, fmt.Errorf("%w: video %s", domain.ErrNotFound, id)
	}
	return c.candidate(ctx, src, v)
}

// VideoID extracts the 11 character id from a video URL.
func VideoID(rawURL string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("%w: no video id in %q", domain.ErrInvalidURL, rawURL)
	}
	return m[1], nil
}

// walkPlaylist yields up to budget videos (no cap when budget <= 0) published at or
// after since. It returns the number of yielded pairs and whether the whole
// crawl must stop.
func (c *Crawler) walkPlaylist(
	ctx context.Context,
	src domain.ContentSource,
	playlistID string,
	since time.Time,
	budget int,
	yield func(domain.Candidate, error) bool,
) (int, bool) {
	listURL := "https://www.youtube.com/playlist?list=" + playlistID
	yielded := 0
	emit := func(cand domain.Candidate, err error) bool {
		yielded++
		return yield(cand, err)
	}

	token := ""
	for {
		page, err := c.api.playlistPage(ctx, src.ID, playlistID, token)
		if err != nil {
			terminal := crawler.IsTerminal(err) || errors.Is(err, domain.ErrInvalidOperation)
			if !emit(domain.Candidate{}, crawler.ItemFailure(listURL, err)) {
				return yielded, true
			}
			return yielded, terminal
		}

		var ids []string
		for _, item := range page.Items {
			if budget > 0 && yielded+len(ids) >= budget {
				break
			}
			id := item.ContentDetails.VideoID
			if id == "" {
				id = item.Snippet.ResourceID.VideoID
			}
			if id == "" {
				continue
			}
			published := parseTimestamp(item.ContentDetails.VideoPublishedAt)
			if published == nil {
				published = parseTimestamp(item.Snippet.PublishedAt)
			}
			if !crawler.Include(published, since) {
				continue
			}
			ids = append(ids, id)
		}
		c.log.Debug("Playlist page listed",
			logger.String("source", src.ID),
			logger.String("playlist", playlistID),
			logger.Int("videos", len(ids)),
		)

		if len(ids) > 0 {
			if stop := c.emitVideos(ctx, src, ids, emit); stop {
				return yielded, true
			}
		}

		token = page.NextPageToken
		if token == "" || (budget > 0 && yielded >= budget) {
			return yielded, false
		}
	}
}

// emitVideos fetches details for ids and yields their candidates in order.
func (c *Crawler) emitVideos(ctx context.Context, src domain.ContentSource, ids []string, emit func(domain.Candidate, error) bool) bool {
	details, err := c.api.videos(ctx, src.ID, ids)
	if err != nil {
		if crawler.IsTerminal(err) {
			emit(domain.Candidate{}, crawler.ItemFailure(watchURL+ids[0], err))
			return true
		}
		for _, id := range ids {
			if !emit(domain.Candidate{}, crawler.ItemFailure(watchURL+id, err)) {
				return true
			}
		}
		return false
	}

	for _, id := range ids {
		v, ok := details[id]
		if !ok {
			if !emit(domain.Candidate{}, crawler.ItemFailure(watchURL+id, fmt.Errorf("%w: video unavailable", domain.ErrUpstreamUnavailable))) {
				return true
			}
			continue
		}
		cand, err := c.candidate(ctx, src, v)
		if err != nil {
			emit(domain.Candidate{}, crawler.ItemFailure(watchURL+id, err))
			return true
		}
		if !emit(cand, nil) {
			return true
		}
	}
	return false
}

// candidate builds the record of one video. It only fails when the transcript
// fetch hits a terminal error; other transcript failures leave it out.
func (c *Crawler) candidate(ctx context.Context, src domain.ContentSource, v videoResource) (domain.Candidate, error) {
	title := textutil.Sanitize(v.Snippet.Title)
	if title == "" {
		title = "Untitled"
	}
	description := textutil.Sanitize(v.Snippet.Description)

	body := description
	if src.Options.FetchTranscripts {
		text, err := c.transcript(ctx, src.ID, v.ID)
		switch {
		case err != nil && crawler.IsTerminal(err):
			return domain.Candidate{}, err
		case err != nil:
			c.log.Warn("Transcript unavailable",
				logger.String("source", src.ID),
				logger.String("video_id", v.ID),
				logger.Error(err),
			)
		case text != "":
			body = description + "\n\nTranscript:\n" + textutil.Truncate(text, c.cfg.MaxTranscriptChars)
		}
	}

	views, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)
	published := parseTimestamp(v.Snippet.PublishedAt)

	return domain.Candidate{
		URL:         watchURL + v.ID,
		SourceID:    src.ID,
		SourceType:  domain.SourceVideo,
		ContentType: domain.ContentVideo,
		Title:       title,
		Description: description,
		Body:        body,
		Author:      v.Snippet.ChannelTitle,
		PublishedAt: published,
		Tags:        v.Snippet.Tags,
		Services:    serviceMatcher.Detect("", title+" "+description+" "+strings.Join(v.Snippet.Tags, " ")),
		Categories:  []string{"video", "tutorial"},
		Metadata: domain.Metadata{
			VideoID:         v.ID,
			DurationSeconds: ParseDuration(v.ContentDetails.Duration),
			ViewCount:       views,
			Keywords:        v.Snippet.Tags,
			Channel:         v.Snippet.ChannelTitle,
		},
	}, nil
}
