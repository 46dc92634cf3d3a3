package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for one pipeline run. It is constructed
// once at startup and passed by reference into each component's constructor;
// no component reads ambient process state directly.
type Config struct {
	Feed        FeedConfig        `yaml:"feed"`
	Destination DestinationConfig `yaml:"destination"`
	Store       StoreConfig       `yaml:"store"`
	Media       MediaConfig       `yaml:"media"`
	Publish     PublishConfig     `yaml:"publish"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// FeedConfig describes the source feed.
type FeedConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Source      string        `yaml:"source"`
	PageSize    int           `yaml:"page_size"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	StartToken  string        `yaml:"start_token"`
}

// DestinationConfig describes the publishing API account.
type DestinationConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccountID     string `yaml:"account_id"`
	Token         string `yaml:"-"` // never persisted to a config file
	CaptionSuffix string `yaml:"caption_suffix"`
}

// StoreConfig locates the persistent dedup state.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MediaConfig controls downloads of media files.
type MediaConfig struct {
	Root        string        `yaml:"root"`
	MaxFileSize int64         `yaml:"max_file_size"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// PublishConfig controls the upload-with-retry loop.
type PublishConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RateLimitFloor time.Duration `yaml:"rate_limit_floor"`
	PostsPerMinute int           `yaml:"posts_per_minute"`
}

// PipelineConfig controls the worker pool.
type PipelineConfig struct {
	Workers   int `yaml:"workers"`
	ItemLimit int `yaml:"item_limit"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:    "https://www.reddit.com",
			PageSize:   25,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Store: StoreConfig{
			Path: "posted.db",
		},
		Media: MediaConfig{
			Root:        "media",
			MaxFileSize: 200 << 20, // 200 MiB, single-request upload ceiling
			Timeout:     30 * time.Second,
			MaxRetries:  3,
		},
		Publish: PublishConfig{
			Timeout:        2 * time.Minute,
			MaxAttempts:    5,
			RateLimitFloor: 30 * time.Second,
			PostsPerMinute: 10,
		},
		Pipeline: PipelineConfig{
			Workers:   4,
			ItemLimit: 25,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then config file, then
// environment, then command-line flag overrides.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	return cfg, nil
}

// LoadFromFile merges a YAML config file into c. An empty path searches the
// standard locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func findConfigFile() string {
	locations := []string{
		".reposter.yaml",
		".reposter.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "reposter", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "reposter", "config.yml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv merges environment variables into c. A .env file in the
// working directory is loaded first when present.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if v := os.Getenv("REPOSTER_FEED_SOURCE"); v != "" {
		c.Feed.Source = v
	}
	if v := os.Getenv("REPOSTER_FEED_BASE_URL"); v != "" {
		c.Feed.BaseURL = v
	}
	if v := os.Getenv("REPOSTER_ENDPOINT"); v != "" {
		c.Destination.Endpoint = v
	}
	if v := os.Getenv("REPOSTER_TOKEN"); v != "" {
		c.Destination.Token = v
	}
	if v := os.Getenv("REPOSTER_ACCOUNT_ID"); v != "" {
		c.Destination.AccountID = v
	}
	if v := os.Getenv("REPOSTER_CAPTION_SUFFIX"); v != "" {
		c.Destination.CaptionSuffix = v
	}
	if v := os.Getenv("REPOSTER_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("REPOSTER_MEDIA_ROOT"); v != "" {
		c.Media.Root = v
	}
	if v := os.Getenv("REPOSTER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("REPOSTER_ITEM_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.ItemLimit = n
		}
	}
	if v := os.Getenv("REPOSTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// applyFlags merges command-line flag overrides into c.
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "source":
			c.Feed.Source = value.(string)
		case "endpoint":
			c.Destination.Endpoint = value.(string)
		case "account-id":
			c.Destination.AccountID = value.(string)
		case "token":
			c.Destination.Token = value.(string)
		case "store":
			c.Store.Path = value.(string)
		case "media-root":
			c.Media.Root = value.(string)
		case "workers":
			c.Pipeline.Workers = value.(int)
		case "limit":
			c.Pipeline.ItemLimit = value.(int)
		case "log-level":
			c.Logging.Level = value.(string)
		}
	}
}

// Validate checks the configuration, collecting every problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.Feed.Source == "" {
		problems = append(problems, "feed source is required")
	}
	if c.Feed.BaseURL == "" {
		problems = append(problems, "feed base URL is required")
	}
	if c.Feed.PageSize <= 0 {
		problems = append(problems, "feed page size must be positive")
	}
	if c.Destination.Endpoint == "" {
		problems = append(problems, "destination endpoint is required")
	}
	if c.Destination.Token == "" {
		problems = append(problems, "destination credential is required")
	}
	if c.Store.Path == "" {
		problems = append(problems, "dedup store path is required")
	}
	if c.Media.Root == "" {
		problems = append(problems, "media storage root is required")
	}
	if c.Pipeline.Workers <= 0 {
		problems = append(problems, "worker count must be positive")
	}
	if c.Pipeline.Workers > 16 {
		problems = append(problems, "worker count should not exceed 16")
	}
	if c.Publish.MaxAttempts <= 0 {
		problems = append(problems, "publish max attempts must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
