// Package dedup decides whether a crawled candidate is new and writes it
// through to the content store keyed by canonical URL.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/canonical"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

// Store is the part of the content store the deduplicator needs.
type Store interface {
	Upsert(ctx context.Context, item *domain.ContentItem) (domain.UpsertOutcome, error)
	ExistsByURL(ctx context.Context, canonicalURL string) (bool, error)
}

// Deduplicator canonicalizes candidates and upserts them. The store's unique
// canonical URL is the source of truth; the optional hash cache only saves
// writes for records already stored exactly as crawled.
type Deduplicator struct {
	store Store
	cache HashCache
	log   logger.Logger
}

// New returns a deduplicator. cache may be nil.
func New(store Store, cache HashCache, log logger.Logger) *Deduplicator {
	return &Deduplicator{store: store, cache: cache, log: log.With(logger.Component("dedup"))}
}

// IsNew reports whether no item with the candidate's canonical URL is stored.
func (d *Deduplicator) IsNew(ctx context.Context, cand domain.Candidate) (bool, error) {
	canon, err := canonical.Normalize(cand.URL)
	if err != nil {
		return false, err
	}
	exists, err := d.store.ExistsByURL(ctx, canon)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", canon, err)
	}
	return !exists, nil
}

// Upsert stores cand and reports whether it was inserted, updated or already
// present with the same body.
func (d *Deduplicator) Upsert(ctx context.Context, cand domain.Candidate) (domain.UpsertOutcome, *domain.ContentItem, error) {
	canon, err := canonical.Normalize(cand.URL)
	if err != nil {
		return "", nil, err
	}

	item := &domain.ContentItem{
		CanonicalURL: canon,
		Candidate:    cand,
		ContentHash:  cand.ContentHash(),
	}
	urlHash := canonical.HashCanonical(canon)
	digest := fingerprint(item)

	if d.cache != nil && digest != "" {
		cached, ok, cacheErr := d.cache.Get(ctx, urlHash)
		switch {
		case cacheErr != nil:
			d.log.Warn("Hash cache unavailable", logger.String("url", canon), logger.Error(cacheErr))
		case ok && cached == digest:
			return domain.OutcomeUnchanged, item, nil
		}
	}

	outcome, err := d.store.Upsert(ctx, item)
	if err != nil {
		return "", nil, fmt.Errorf("upsert %s: %w", canon, err)
	}

	if d.cache != nil && digest != "" {
		if cacheErr := d.cache.Set(ctx, urlHash, digest); cacheErr != nil {
			d.log.Warn("Hash cache write failed", logger.String("url", canon), logger.Error(cacheErr))
		}
	}
	return outcome, item, nil
}

// fingerprint digests every stored field of item, so a revised title, tag
// list or view count misses the cache even when the body hash is unchanged.
// It returns "" when the record cannot be encoded.
func fingerprint(item *domain.ContentItem) string {
	raw, err := json.Marshal(item.Candidate)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Filter returns a predicate rejecting candidates published before since.
// Candidates without a timestamp always pass.
func Filter(since time.Time) func(domain.Candidate) bool {
	return func(c domain.Candidate) bool {
		rev := c.Revision()
		return since.IsZero() || rev == nil || !rev.Before(since)
	}
}
