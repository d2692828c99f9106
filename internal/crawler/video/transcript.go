package video

import (
	"context"
	"encoding/xml"
	"html"
	"net/url"
	"strings"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

type timedText struct {
	Texts []string `xml:"text"`
}

// transcript fetches the English captions of a video, preferring
// manually created tracks over auto-generated ones. An empty string means
// no captions exist.
func (c *Crawler) transcript(ctx context.Context, key, videoID string) (string, error) {
	for _, kind := range []string{"", "asr"} {
		params := url.Values{}
		params.Set("v", videoID)
		params.Set("lang", "en")
		if kind != "" {
			params.Set("kind", kind)
		}

		resp, err := c.fetcher.Get(ctx, key, c.cfg.TranscriptURL+"?"+params.Encode())
		if err != nil {
			if httpfetch.IsKind(err, httpfetch.KindNotFound) {
				continue
			}
			return "", err
		}
		if len(strings.TrimSpace(string(resp.Body))) == 0 {
			continue
		}

		var doc timedText
		if err := xml.Unmarshal(resp.Body, &doc); err != nil {
			return "", httpfetch.ClassifyParse(err, c.cfg.TranscriptURL)
		}
		parts := make([]string, 0, len(doc.Texts))
		for _, t := range doc.Texts {
			parts = append(parts, html.UnescapeString(t))
		}
		if text := textutil.Sanitize(strings.Join(parts, " ")); text != "" {
			return text, nil
		}
	}
	return "", nil
}
