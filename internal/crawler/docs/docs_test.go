package docs_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/crawler/docs"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

const pageHTML = `<html><head><title>%[1]s</title><meta name="keywords" content="ec2,compute"></head>
<body><h1>%[1]s</h1><div id="main-content"><p>Amazon EC2 provides resizable compute.</p></div></body></html>`

func newDocsServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var base string

	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/ec2/sitemap.xml</loc></sitemap>
  <sitemap><loc>%[1]s/s3/sitemap.xml</loc></sitemap>
</sitemapindex>`, base)
	})
	mux.HandleFunc("/ec2/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/ec2/new.html</loc><lastmod>2024-06-10T00:00:00Z</lastmod></url>
  <url><loc>%[1]s/ec2/old.html</loc><lastmod>2023-01-01</lastmod></url>
  <url><loc>%[1]s/ec2/missing.html</loc></url>
  <url><loc>%[1]s/ec2/other.html</loc><lastmod>2024-06-11</lastmod></url>
</urlset>`, base)
	})
	mux.HandleFunc("/s3/sitemap.xml", func(http.ResponseWriter, *http.Request) {
		t.Error("s3 sitemap must be filtered out")
	})
	for _, name := range []string{"new", "old", "other"} {
		mux.HandleFunc("/ec2/"+name+".html", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, pageHTML, "Page "+name)
		})
	}
	mux.HandleFunc("/ec2/missing.html", http.NotFound)

	srv := httptest.NewServer(mux)
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newCrawler(srv *httptest.Server) *docs.Crawler {
	fetcher := httpfetch.New(httpfetch.Config{UserAgent: "test"}, nil, srv.Client())
	return docs.New(fetcher, docs.Config{}, logger.NewNop())
}

func collect(seq func(func(domain.Candidate, error) bool)) ([]domain.Candidate, []error) {
	var cands []domain.Candidate
	var errs []error
	for c, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cands = append(cands, c)
	}
	return cands, errs
}

func TestCrawl_ServiceScopeSinceAndFailures(t *testing.T) {
	t.Parallel()

	srv := newDocsServer(t)
	c := newCrawler(srv)

	src := domain.ContentSource{
		ID:      "aws-docs",
		Type:    domain.SourceDocs,
		BaseURL: srv.URL,
		FeedURL: srv.URL + "/sitemap_index.xml",
		Options: domain.SourceOptions{Services: []string{"ec2"}},
	}
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cands, errs := collect(c.Crawl(context.Background(), src, since, 0))

	require.Len(t, cands, 2)
	require.Len(t, errs, 1)

	first := cands[0]
	assert.Equal(t, srv.URL+"/ec2/new.html", first.URL)
	assert.Equal(t, "Page new", first.Title)
	assert.Equal(t, "Amazon EC2 provides resizable compute.", first.Body)
	assert.Equal(t, domain.ContentDocumentation, first.ContentType)
	assert.Equal(t, "AWS Documentation", first.Author)
	assert.Equal(t, []string{"documentation"}, first.Categories)
	assert.Equal(t, []string{"ec2", "compute"}, first.Tags)
	assert.Contains(t, first.Services, "ec2")
	require.NotNil(t, first.PublishedAt)

	var itemErr *crawler.ItemError
	require.ErrorAs(t, errs[0], &itemErr)
	assert.Equal(t, srv.URL+"/ec2/missing.html", itemErr.URL)
	assert.True(t, httpfetch.IsKind(errs[0], httpfetch.KindNotFound))
	assert.False(t, crawler.IsTerminal(errs[0]))
}

func TestCrawl_Limit(t *testing.T) {
	t.Parallel()

	srv := newDocsServer(t)
	c := newCrawler(srv)
	src := domain.ContentSource{ID: "aws-docs", BaseURL: srv.URL, Options: domain.SourceOptions{Services: []string{"ec2"}}}

	cands, errs := collect(c.Crawl(context.Background(), src, time.Time{}, 1))
	assert.Len(t, cands, 1)
	assert.Empty(t, errs)
}

func TestCrawl_IndexFailureIsSingleFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newCrawler(srv)
	cands, errs := collect(c.Crawl(context.Background(), domain.ContentSource{ID: "d", BaseURL: srv.URL}, time.Time{}, 0))

	assert.Empty(t, cands)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrUpstreamUnavailable)
}

func TestCrawl_StopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	srv := newDocsServer(t)
	c := newCrawler(srv)
	src := domain.ContentSource{ID: "aws-docs", BaseURL: srv.URL, Options: domain.SourceOptions{Services: []string{"ec2"}}}

	n := 0
	for range c.Crawl(context.Background(), src, time.Time{}, 0) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
