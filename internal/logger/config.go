package logger

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config controls level, encoding and sinks of the logger.
type Config struct {
	Level       string   `yaml:"level"        env:"LOG_LEVEL"`
	Format      string   `yaml:"format"       env:"LOG_FORMAT"`
	Development bool     `yaml:"development"  env:"LOG_DEVELOPMENT"`
	OutputPaths []string `yaml:"output_paths"`
}

// SetDefaults fills unset values: info level, JSON to stdout.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
}
