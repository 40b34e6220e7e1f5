package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tkingovr/procfilter/internal/filter"
	"github.com/tkingovr/procfilter/internal/runner"
)

// ErrInvalid is wrapped by every load or validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the runtime configuration for procfilter.
type Config struct {
	Version  int             `yaml:"version"`
	Settings Settings        `yaml:"settings"`
	Filters  []filter.Config `yaml:"filters"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// Settings holds process-wide options.
type Settings struct {
	LogLevel    string `yaml:"log_level,omitempty"`
	LogFormat   string `yaml:"log_format,omitempty"`
	AuditDir    string `yaml:"audit_dir,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w: %w", ErrInvalid, err)
	}
	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// LoadBytes parses and validates YAML configuration data.
func LoadBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w: %w", ErrInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns a config with defaults for when no config file is given.
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = DefaultLogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = DefaultLogFormat
	}
	if c.Settings.AuditDir != "" {
		c.Settings.AuditDir = runner.ExpandHome(c.Settings.AuditDir)
	}
	if c.Settings.MetricsFile != "" {
		c.Settings.MetricsFile = runner.ExpandHome(c.Settings.MetricsFile)
	}
}

// validate checks what can be checked without touching the filesystem.
// Paths and exit code sets are validated when the filters are built.
func (c *Config) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, c.Version)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Settings.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalid, c.Settings.LogFormat)
	}

	seen := make(map[string]bool, len(c.Filters))
	for i, f := range c.Filters {
		switch f.Type {
		case filter.TypeExternal, filter.TypeClassifier, filter.TypeTMDA:
		case "":
			return fmt.Errorf("%w: filter %d: missing type", ErrInvalid, i+1)
		default:
			return fmt.Errorf("%w: filter %d: unknown type %q", ErrInvalid, i+1, f.Type)
		}

		name := filterName(f)
		if name == "" {
			return fmt.Errorf("%w: filter %d: missing path", ErrInvalid, i+1)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate filter name %q", ErrInvalid, name)
		}
		seen[name] = true
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.Settings.LogLevel)
	}
	return level, nil
}

// Filter returns the configuration of the named filter.
func (c *Config) Filter(name string) (filter.Config, bool) {
	for _, f := range c.Filters {
		if filterName(f) == name {
			return f, true
		}
	}
	return filter.Config{}, false
}

// YAML serializes the configuration for display.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func filterName(f filter.Config) string {
	if f.Name != "" {
		return f.Name
	}
	path := f.Path
	if path == "" && f.Type == filter.TypeTMDA {
		path = filter.DefaultTMDAPath
	}
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
