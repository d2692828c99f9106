// Package extract pulls titles, metadata and readable body text out of HTML pages.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// Page is the readable content of one HTML page.
type Page struct {
	Title       string
	Description string
	Author      string
	Keywords    []string
	PublishedAt *time.Time
	Body        string
}

// Rules selects the title and body containers. The first selector that
// matches non-empty text wins.
type Rules struct {
	Title []string
	Body  []string
	// Strip is removed from the body container before reading text.
	Strip string
	// MaxChars caps the body length in runes; zero keeps everything.
	MaxChars int
}

const defaultStrip = "script, style, nav, header, footer, noscript, iframe, aside"

const blockElements = "p, div, li, h1, h2, h3, h4, h5, h6, pre, tr, br, section, dt, dd, blockquote"

// DocsRules reads documentation pages.
func DocsRules(maxChars int) Rules {
	return Rules{
		Title:    []string{"h1", "title"},
		Body:     []string{"#main-content", "main", "body"},
		Strip:    defaultStrip,
		MaxChars: maxChars,
	}
}

// BlogRules reads blog posts.
func BlogRules(maxChars int) Rules {
	return Rules{
		Title:    []string{"h1", "title"},
		Body:     []string{"article", ".blog-post-content", "#post-body", "main"},
		Strip:    defaultStrip,
		MaxChars: maxChars,
	}
}

// Parse builds a document from raw HTML.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FromHTML parses body and applies rules.
func FromHTML(body []byte, rules Rules) (*Page, error) {
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return Extract(doc.Selection, rules), nil
}

// Extract reads a page from a parsed document root. It mutates the tree.
func Extract(root *goquery.Selection, rules Rules) *Page {
	p := &Page{
		Title:       firstText(root, rules.Title),
		Description: metaContent(root, "meta[name='description']", "meta[property='og:description']"),
		Author:      metaContent(root, "meta[name='author']", "meta[property='article:author']"),
		Keywords:    splitKeywords(metaContent(root, "meta[name='keywords']")),
	}
	if p.Title == "" {
		p.Title = metaContent(root, "meta[property='og:title']")
	}
	if raw := metaContent(root, "meta[property='article:published_time']"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			p.PublishedAt = &t
		}
	}

	p.Body = bodyText(root, rules)
	return p
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(root.Find(sel).First().Text()); text != "" {
			return textutil.Sanitize(text)
		}
	}
	return ""
}

func metaContent(root *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := root.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func bodyText(root *goquery.Selection, rules Rules) string {
	strip := rules.Strip
	if strip == "" {
		strip = defaultStrip
	}
	for _, sel := range rules.Body {
		container := root.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		container.Find(strip).Remove()
		// keep block boundaries so adjacent paragraphs do not run together
		container.Find(blockElements).AppendHtml("\n")

		text := textutil.Sanitize(container.Text())
		if text == "" {
			continue
		}
		if rules.MaxChars > 0 {
			text = textutil.Truncate(text, rules.MaxChars)
		}
		return text
	}
	return ""
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
