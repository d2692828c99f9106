package crawler

import (
	"slices"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// ServicePatterns maps a service id to phrases that indicate it.
type ServicePatterns map[string][]string

// Detect compiles p and runs it once. Crawlers keep a compiled matcher.
func (p ServicePatterns) Detect(url, text string) []string {
	return p.Compile().Detect(url, text)
}

// ServiceMatcher finds every phrase of every service in a single pass.
type ServiceMatcher struct {
	matcher  *ahocorasick.Matcher
	owners   []string // owners[i] is the service phrase i belongs to
	services []string
}

// Compile builds a matcher over the folded phrases.
func (p ServicePatterns) Compile() *ServiceMatcher {
	m := &ServiceMatcher{}
	var phrases []string
	for svc, list := range p {
		m.services = append(m.services, svc)
		for _, phrase := range list {
			phrases = append(phrases, textutil.Fold(phrase))
			m.owners = append(m.owners, svc)
		}
	}
	if len(phrases) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(phrases)
	}
	return m
}

// Detect returns the sorted service ids whose /<id>/ segment appears in url or
// whose phrases appear in text, ignoring case and diacritics.
func (m *ServiceMatcher) Detect(url, text string) []string {
	seen := make(map[string]bool)
	if url != "" {
		url = strings.ToLower(url)
		for _, svc := range m.services {
			if strings.Contains(url, "/"+svc+"/") {
				seen[svc] = true
			}
		}
	}
	if m.matcher != nil && text != "" {
		for _, i := range m.matcher.Match([]byte(textutil.Fold(text))) {
			seen[m.owners[i]] = true
		}
	}

	found := make([]string, 0, len(seen))
	for svc := range seen {
		found = append(found, svc)
	}
	slices.Sort(found)
	return found
}
