// Package canonical maps equivalent URLs to one canonical form, the dedup
// key of the content store.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// analytics and campaign parameters that never change the page
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"gclsrc":       {},
	"dclid":        {},
	"msclkid":      {},
	"sc_channel":   {},
	"sc_campaign":  {},
	"trk":          {},
	"feature":      {},
	"si":           {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Parse validates raw as an absolute http(s) URL.
func Parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", domain.ErrInvalidURL, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host: %q", domain.ErrInvalidURL, raw)
	}
	u.Scheme = scheme
	return u, nil
}

// Normalize returns the canonical form of raw: lowercase scheme and host, no
// default port, no fragment, no tracking parameters, sorted query, cleaned
// path without trailing slash. Short video links expand to the watch URL.
func Normalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && defaultPorts[u.Scheme] != port {
		host += ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	if id, ok := shortVideoID(u); ok {
		return "https://www.youtube.com/watch?v=" + url.QueryEscape(id), nil
	}

	u.RawQuery = cleanQuery(u.Query())
	u.Path = cleanPath(u.Path)
	u.RawPath = ""

	return u.String(), nil
}

// Hash returns the SHA-256 hex digest of the canonical form of raw.
func Hash(raw string) (string, error) {
	n, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return HashCanonical(n), nil
}

// HashCanonical hashes an already canonical URL.
func HashCanonical(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Resolve turns href into an absolute URL relative to base.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base: %w", domain.ErrInvalidURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func shortVideoID(u *url.URL) (string, bool) {
	if u.Host != "youtu.be" {
		return "", false
	}
	id := strings.Trim(u.Path, "/")
	return id, id != ""
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if _, tracking := trackingParams[strings.ToLower(key)]; !tracking {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, val := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

func cleanPath(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "/" || cleaned == "." {
		return ""
	}
	return strings.TrimRight(cleaned, "/")
}
