package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/ratelimit"
)

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       logger.Config       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	YouTube       YouTubeConfig       `yaml:"youtube"`
	Crawler       CrawlerConfig       `yaml:"crawler"`
	// RateLimits maps a limiter key (source id or "analysis") to a budget like "1/s" or "30/m".
	RateLimits map[string]string `yaml:"rate_limits"`
	Operations OperationsConfig  `yaml:"operations"`
	Jobs       JobsConfig        `yaml:"jobs"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Auth       AuthConfig        `yaml:"auth"`
	Profiling  ProfilingConfig   `yaml:"profiling"`
	Sources    []SourceConfig    `yaml:"sources"`
}

// Load reads the configuration at path with defaults and env overrides applied.
func Load(path string) (*Config, error) {
	cfg, err := LoadInto(path, (*Config).SetDefaults)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills every unset value.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Database.SetDefaults()
	c.Redis.SetDefaults()
	c.Elasticsearch.SetDefaults()
	c.Anthropic.SetDefaults()
	c.YouTube.SetDefaults()
	c.Crawler.SetDefaults()
	c.Operations.SetDefaults()
	c.Jobs.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Profiling.SetDefaults()

	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	for i := range c.Sources {
		c.Sources[i].SetDefaults()
	}

	if c.RateLimits == nil {
		c.RateLimits = make(map[string]string)
	}
	for key, budget := range defaultRateLimits {
		if _, ok := c.RateLimits[key]; !ok {
			c.RateLimits[key] = budget
		}
	}
}

// Validate checks the loaded configuration, joining every failure.
func (c *Config) Validate() error {
	errs := []error{
		c.Server.Validate(),
		c.Database.Validate(),
		c.Operations.Validate(),
		c.Jobs.Validate(),
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if seen[src.ID] {
			errs = append(errs, &ValidationError{Field: "sources", Message: fmt.Sprintf("duplicate id %q", src.ID)})
		}
		seen[src.ID] = true
		errs = append(errs, src.Validate(i))
	}

	for key, raw := range c.RateLimits {
		if _, err := ratelimit.ParseBudget(raw); err != nil {
			errs = append(errs, &ValidationError{Field: "rate_limits." + key, Message: err.Error()})
		}
	}

	return errors.Join(errs...)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"`
	Debug           bool          `yaml:"debug"            env:"APP_DEBUG"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"     env:"CORS_ORIGINS"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8070
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		// wait=true on ad-hoc crawls holds the response open for the full crawl timeout
		c.WriteTimeout = 6 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

func (c *ServerConfig) Validate() error {
	return validPort("server.port", c.Port)
}

// Address returns host:port for the listener.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the Postgres content store.
type DatabaseConfig struct {
	Host            string        `yaml:"host"              env:"POSTGRES_HOST"`
	Port            int           `yaml:"port"              env:"POSTGRES_PORT"`
	User            string        `yaml:"user"              env:"POSTGRES_USER"`
	Password        string        `yaml:"password"          env:"POSTGRES_PASSWORD"`
	Name            string        `yaml:"name"              env:"POSTGRES_DB"`
	SSLMode         string        `yaml:"sslmode"           env:"POSTGRES_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// AutoMigrate applies pending migrations from MigrationsPath at startup.
	AutoMigrate    bool   `yaml:"auto_migrate"    env:"DATABASE_AUTO_MIGRATE"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.User == "" {
		c.User = "postgres"
	}
	if c.Name == "" {
		c.Name = "content_crawler"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.MigrationsPath == "" {
		c.MigrationsPath = "migrations"
	}
}

func (c *DatabaseConfig) Validate() error {
	return errors.Join(
		required("database.host", c.Host),
		required("database.name", c.Name),
		validPort("database.port", c.Port),
	)
}

// DSN returns a lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig configures the content-hash cache and the distributed source guard.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"  env:"REDIS_ENABLED"`
	Address  string        `yaml:"address"  env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"       env:"REDIS_DB"`
	HashTTL  time.Duration `yaml:"hash_ttl"`
}

func (c *RedisConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.HashTTL == 0 {
		c.HashTTL = 30 * 24 * time.Hour
	}
}

// ElasticsearchConfig configures the optional search index of scored items.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses" env:"ELASTICSEARCH_URL"`
	Username  string   `yaml:"username"  env:"ELASTICSEARCH_USERNAME"`
	Password  string   `yaml:"password"  env:"ELASTICSEARCH_PASSWORD"`
	APIKey    string   `yaml:"api_key"   env:"ELASTICSEARCH_API_KEY"`
	Index     string   `yaml:"index"     env:"ELASTICSEARCH_INDEX"`
}

func (c *ElasticsearchConfig) SetDefaults() {
	if c.Index == "" {
		c.Index = "aws_content"
	}
}

// Enabled reports whether any address is configured.
func (c *ElasticsearchConfig) Enabled() bool { return len(c.Addresses) > 0 }

// AnthropicConfig configures the AI analysis client.
type AnthropicConfig struct {
	APIKey            string        `yaml:"api_key"             env:"ANTHROPIC_API_KEY"`
	Model             string        `yaml:"model"               env:"ANTHROPIC_MODEL"`
	BaseURL           string        `yaml:"base_url"            env:"ANTHROPIC_BASE_URL"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
}

func (c *AnthropicConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "claude-3-haiku-20240307"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInitialDelay == 0 {
		c.RetryInitialDelay = 2 * time.Second
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = time.Minute
	}
}

// YouTubeConfig configures the video metadata and transcript endpoints.
type YouTubeConfig struct {
	APIKey           string `yaml:"api_key"             env:"YOUTUBE_API_KEY"`
	BaseURL          string `yaml:"base_url"            env:"YOUTUBE_BASE_URL"`
	TranscriptURL    string `yaml:"transcript_url"`
	QuotaUnitsPerDay int    `yaml:"quota_units_per_day"`
	ChannelID        string `yaml:"channel_id"`
	// Playlists maps a short name to a playlist id.
	Playlists map[string]string `yaml:"playlists"`
}

func (c *YouTubeConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if c.TranscriptURL == "" {
		c.TranscriptURL = "https://www.youtube.com/api/timedtext"
	}
	if c.QuotaUnitsPerDay == 0 {
		c.QuotaUnitsPerDay = 10000
	}
	if c.ChannelID == "" {
		c.ChannelID = "UCd6MoB9NC6uYN2grvUNT-Zg"
	}
	if len(c.Playlists) == 0 {
		c.Playlists = map[string]string{
			"reinvent":                "PL2yQDdvlhXf9OtR_NyZCrWrzh_LXlXXEg",
			"this-is-my-architecture": "PLhr1KZpdzukcOr_6j_zmePaH9cX_lMl_H",
			"aws-training":            "PLhr1KZpdzukf1ERxT2lJNIkXm1DF3NlHa",
			"aws-online-tech-talks":   "PLhr1KZpdzukeH9gDWNDnm_V_Vp6cqfp1K",
			"aws-tutorials":           "PLhr1KZpdzukf0TF2bh4B_k3_OT3FPvr7K",
			"aws-devops":              "PLhr1KZpdzukfqGLTAy0Cg23wVFN5JOqHh",
			"aws-containers":          "PLhr1KZpdzukdRxs_pGJm-qSy5LayL6W_Y",
		}
	}
}

// CrawlerConfig holds HTTP settings shared by every crawler.
type CrawlerConfig struct {
	UserAgent          string        `yaml:"user_agent"           env:"CRAWLER_USER_AGENT"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxBodySize        int           `yaml:"max_body_size"`
	MaxContentChars    int           `yaml:"max_content_chars"`
	MaxTranscriptChars int           `yaml:"max_transcript_chars"`
	MaxSitemaps        int           `yaml:"max_sitemaps"`
}

func (c *CrawlerConfig) SetDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "NorthCloud-ContentCrawler/1.0 (+https://northcloud.one)"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = 10 << 20
	}
	if c.MaxContentChars == 0 {
		c.MaxContentChars = 50000
	}
	if c.MaxTranscriptChars == 0 {
		c.MaxTranscriptChars = 45000
	}
	if c.MaxSitemaps == 0 {
		c.MaxSitemaps = 10
	}
}

// JobsConfig bounds job lifetimes and retention.
type JobsConfig struct {
	Retention     time.Duration `yaml:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
	AdHocTimeout  time.Duration `yaml:"ad_hoc_timeout"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	// LockTTL expires a distributed source guard whose holder died.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

func (c *JobsConfig) SetDefaults() {
	if c.Retention == 0 {
		c.Retention = 10 * time.Minute
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = time.Minute
	}
	if c.AdHocTimeout == 0 {
		c.AdHocTimeout = 5 * time.Minute
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 2 * time.Hour
	}
	if c.LockTTL == 0 {
		c.LockTTL = c.JobTimeout + 5*time.Minute
	}
}

func (c *JobsConfig) Validate() error {
	if c.LockTTL < c.JobTimeout {
		return &ValidationError{Field: "jobs.lock_ttl", Message: "must not be shorter than jobs.job_timeout"}
	}
	return nil
}

// SchedulerConfig configures the periodic daily update.
type SchedulerConfig struct {
	Disabled bool `yaml:"disabled" env:"SCHEDULER_DISABLED"`
	// DailyUpdate is a cron expression, seconds optional.
	DailyUpdate string `yaml:"daily_update" env:"SCHEDULER_DAILY_UPDATE"`
}

func (c *SchedulerConfig) SetDefaults() {
	if c.DailyUpdate == "" {
		c.DailyUpdate = "0 3 * * *"
	}
}

// AuthConfig enables JWT protection of the API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled         bool   `yaml:"enabled"          env:"ENABLE_CONTINUOUS_PROFILING"`
	ServerAddress   string `yaml:"server_address"   env:"PYROSCOPE_SERVER_ADDRESS"`
	ApplicationName string `yaml:"application_name"`
}

func (c *ProfilingConfig) SetDefaults() {
	if c.ServerAddress == "" {
		c.ServerAddress = "http://localhost:4040"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "content-crawler"
	}
}

var defaultRateLimits = map[string]string{
	"aws-docs":    "1/s",
	"aws-blogs":   "30/m",
	"aws-youtube": "60/m",
	"analysis":    "50/m",
}
