// Package search mirrors scored content into Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "canonical_url":   {"type": "keyword"},
      "source_id":       {"type": "keyword"},
      "content_type":    {"type": "keyword"},
      "title":           {"type": "text"},
      "description":     {"type": "text"},
      "body":            {"type": "text"},
      "author":          {"type": "keyword"},
      "published_at":    {"type": "date"},
      "aws_services":    {"type": "keyword"},
      "topics":          {"type": "keyword"},
      "categories":      {"type": "keyword"},
      "difficulty":      {"type": "keyword"},
      "quality_score":   {"type": "float"},
      "technical_depth": {"type": "float"},
      "practical_value": {"type": "float"},
      "clarity_score":   {"type": "float"},
      "up_to_dateness":  {"type": "float"},
      "summary":         {"type": "text"},
      "processed_at":    {"type": "date"}
    }
  }
}`

type document struct {
	CanonicalURL   string     `json:"canonical_url"`
	SourceID       string     `json:"source_id"`
	ContentType    string     `json:"content_type"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Body           string     `json:"body,omitempty"`
	Author         string     `json:"author,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Services       []string   `json:"aws_services,omitempty"`
	Topics         []string   `json:"topics,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Difficulty     string     `json:"difficulty,omitempty"`
	QualityScore   float64    `json:"quality_score"`
	TechnicalDepth float64    `json:"technical_depth"`
	PracticalValue float64    `json:"practical_value"`
	Clarity        float64    `json:"clarity_score"`
	Currency       float64    `json:"up_to_dateness"`
	Summary        string     `json:"summary,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

func toDocument(item *domain.ContentItem) document {
	doc := document{
		CanonicalURL: item.CanonicalURL,
		SourceID:     item.SourceID,
		ContentType:  string(item.ContentType),
		Title:        item.Title,
		Description:  item.Description,
		Body:         item.Body,
		Author:       item.Author,
		PublishedAt:  item.PublishedAt,
		Services:     item.Services,
		Categories:   item.Categories,
		ProcessedAt:  item.ProcessedAt,
	}
	if q := item.Quality; q != nil {
		doc.Topics = q.Topics
		doc.Difficulty = string(q.Difficulty)
		doc.QualityScore = q.Overall
		doc.TechnicalDepth = q.TechnicalDepth
		doc.PracticalValue = q.PracticalValue
		doc.Clarity = q.Clarity
		doc.Currency = q.Currency
		doc.Summary = q.Summary
	}
	return doc
}

// Indexer writes scored items into one index, creating it on first use.
type Indexer struct {
	client *es.Client
	index  string
	log    logger.Logger

	mu      sync.Mutex
	ensured bool
}

// NewClient builds an Elasticsearch client from configuration.
func NewClient(cfg config.ElasticsearchConfig) (*es.Client, error) {
	addrs := make([]string, 0, len(cfg.Addresses))
	for _, a := range cfg.Addresses {
		addrs = append(addrs, normalizeURL(a))
	}
	esCfg := es.Config{Addresses: addrs}
	switch {
	case cfg.APIKey != "":
		esCfg.APIKey = cfg.APIKey
	case cfg.Username != "" && cfg.Password != "":
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return client, nil
}

// NewIndexer returns an indexer writing to index.
func NewIndexer(client *es.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{client: client, index: index, log: log.With(logger.Component("search_indexer"))}
}

// Index upserts item under its id.
func (i *Indexer) Index(ctx context.Context, item *domain.ContentItem) error {
	if err := i.ensureIndex(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(toDocument(item))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(item.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", item.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index %s: %s", item.ID, responseError(res.Body, res.Status()))
	}
	return nil
}

func (i *Indexer) ensureIndex(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ensured {
		return nil
	}

	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", i.index, err)
	}
	res.Body.Close()

	if res.StatusCode == 404 {
		created, createErr := i.client.Indices.Create(
			i.index,
			i.client.Indices.Create.WithContext(ctx),
			i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		)
		if createErr != nil {
			return fmt.Errorf("failed to create index %s: %w", i.index, createErr)
		}
		defer created.Body.Close()
		if created.IsError() && !strings.Contains(responseError(created.Body, ""), "resource_already_exists_exception") {
			return fmt.Errorf("failed to create index %s: %s", i.index, created.Status())
		}
		i.log.Info("Search index created", logger.String("index", i.index))
	}

	i.ensured = true
	return nil
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "http://" + raw
	}
	return raw
}

func responseError(body io.Reader, fallback string) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4<<10))
	if err != nil || len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
