package docs

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

const dateOnlyFormat = "2006-01-02"

// Entry is one page listed in a sitemap.
type Entry struct {
	Loc     string
	LastMod *time.Time
}

// sitemapDoc decodes either a <sitemapindex> or a <urlset>; XMLName tells which.
type sitemapDoc struct {
	XMLName  xml.Name
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
	URLs []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// parseSitemap returns child sitemap URLs for an index, or page entries for a urlset.
func parseSitemap(body []byte) (children []string, entries []Entry, err error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse sitemap: %w", err)
	}

	switch doc.XMLName.Local {
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				children = append(children, loc)
			}
		}
	case "urlset":
		for _, u := range doc.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" {
				continue
			}
			e := Entry{Loc: loc}
			if t, err := parseLastMod(u.LastMod); err == nil {
				e.LastMod = &t
			}
			entries = append(entries, e)
		}
	default:
		return nil, nil, fmt.Errorf("parse sitemap: unexpected root element <%s>", doc.XMLName.Local)
	}
	return children, entries, nil
}

// parseLastMod accepts RFC 3339 timestamps and plain dates.
func parseLastMod(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty lastmod")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnlyFormat, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse lastmod %q: %w", raw, err)
	}
	return t, nil
}

// matchesServices keeps a child sitemap when no services are configured or
// its URL contains /<service>/ for any of them.
func matchesServices(sitemapURL string, services []string) bool {
	if len(services) == 0 {
		return true
	}
	lower := strings.ToLower(sitemapURL)
	for _, svc := range services {
		if strings.Contains(lower, "/"+strings.ToLower(svc)+"/") {
			return true
		}
	}
	return false
}
