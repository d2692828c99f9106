package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// SourceConfig seeds one content source.
type SourceConfig struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`
	BaseURL           string        `yaml:"base_url"`
	FeedURL           string        `yaml:"feed_url"`
	Cadence           time.Duration `yaml:"cadence"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Inactive          bool          `yaml:"inactive"`
	Services          []string      `yaml:"services"`
	Categories        []string      `yaml:"categories"`
	Playlists         []string      `yaml:"playlists"`
}

func (s *SourceConfig) SetDefaults() {
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Cadence == 0 {
		s.Cadence = 24 * time.Hour
	}
	if s.RequestsPerMinute == 0 {
		s.RequestsPerMinute = 30
	}
}

func (s *SourceConfig) Validate(i int) error {
	field := fmt.Sprintf("sources[%d]", i)
	if err := required(field+".id", s.ID); err != nil {
		return err
	}
	if _, err := domain.ParseSourceType(s.Type); err != nil {
		return &ValidationError{Field: field + ".type", Message: err.Error()}
	}
	return absoluteURL(field+".base_url", s.BaseURL)
}

// ToDomain converts the seed into a ContentSource.
func (s *SourceConfig) ToDomain() (domain.ContentSource, error) {
	t, err := domain.ParseSourceType(s.Type)
	if err != nil {
		return domain.ContentSource{}, err
	}
	return domain.ContentSource{
		ID:                s.ID,
		Name:              s.Name,
		Type:              t,
		BaseURL:           s.BaseURL,
		FeedURL:           s.FeedURL,
		Cadence:           s.Cadence,
		RequestsPerMinute: s.RequestsPerMinute,
		Active:            !s.Inactive,
		Options: domain.SourceOptions{
			Services:   s.Services,
			Categories: s.Categories,
			Playlists:  s.Playlists,
		},
	}, nil
}

// ContentSources converts every configured seed.
func (c *Config) ContentSources() ([]domain.ContentSource, error) {
	out := make([]domain.ContentSource, 0, len(c.Sources))
	for i := range c.Sources {
		src, err := c.Sources[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", c.Sources[i].ID, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// DefaultSources returns the documentation, blog and video seeds.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			ID:                "aws-docs",
			Name:              "AWS Documentation",
			Type:              string(domain.SourceDocs),
			BaseURL:           "https://docs.aws.amazon.com",
			FeedURL:           "https://docs.aws.amazon.com/sitemap_index.xml",
			RequestsPerMinute: 60,
			Services: []string{
				"ec2", "s3", "lambda", "rds", "dynamodb", "cloudformation", "ecs",
				"eks", "vpc", "iam", "cloudwatch", "sns", "sqs",
			},
		},
		{
			ID:                "aws-blogs",
			Name:              "AWS Blogs",
			Type:              string(domain.SourceBlog),
			BaseURL:           "https://aws.amazon.com/blogs",
			RequestsPerMinute: 30,
			Categories: []string{
				"architecture", "devops", "security", "containers", "database", "compute",
				"storage", "networking", "big-data", "machine-learning", "mobile", "developer",
				"opensource", "startups", "public-sector", "apn", "aws-news", "gametech", "iot",
			},
		},
		{
			ID:                "aws-youtube",
			Name:              "AWS YouTube",
			Type:              string(domain.SourceVideo),
			BaseURL:           "https://www.youtube.com",
			RequestsPerMinute: 60,
			Playlists: []string{
				"reinvent", "this-is-my-architecture", "aws-training", "aws-online-tech-talks",
				"aws-tutorials", "aws-devops", "aws-containers",
			},
		},
	}
}
