package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Feed.BaseURL != "https://www.reddit.com" {
		t.Errorf("unexpected feed base URL: %s", cfg.Feed.BaseURL)
	}
	if cfg.Feed.PageSize != 25 {
		t.Errorf("expected page size 25, got %d", cfg.Feed.PageSize)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Publish.RateLimitFloor != 30*time.Second {
		t.Errorf("expected 30s rate limit floor, got %v", cfg.Publish.RateLimitFloor)
	}
	if cfg.Media.MaxFileSize != 200<<20 {
		t.Errorf("expected 200 MiB size ceiling, got %d", cfg.Media.MaxFileSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
feed:
  source: pics
  page_size: 50
destination:
  endpoint: https://api.example/publish
  account_id: acct-9
  caption_suffix: follow @cats
pipeline:
  workers: 2
  item_limit: 10
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Feed.Source != "pics" {
		t.Errorf("expected source pics, got %s", cfg.Feed.Source)
	}
	if cfg.Feed.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.Feed.PageSize)
	}
	if cfg.Destination.Endpoint != "https://api.example/publish" {
		t.Errorf("unexpected endpoint: %s", cfg.Destination.Endpoint)
	}
	if cfg.Destination.CaptionSuffix != "follow @cats" {
		t.Errorf("unexpected caption suffix: %q", cfg.Destination.CaptionSuffix)
	}
	if cfg.Pipeline.Workers != 2 || cfg.Pipeline.ItemLimit != 10 {
		t.Errorf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}

	// Untouched sections keep their defaults.
	if cfg.Feed.BaseURL != "https://www.reddit.com" {
		t.Errorf("expected default base URL to survive, got %s", cfg.Feed.BaseURL)
	}
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(""); err != nil {
		t.Errorf("missing config file must not be an error, got %v", err)
	}
}

func TestLoadFromFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("feed: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err == nil {
		t.Error("expected a parse error for malformed YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REPOSTER_FEED_SOURCE", "aww")
	t.Setenv("REPOSTER_TOKEN", "env-token")
	t.Setenv("REPOSTER_WORKERS", "8")
	t.Setenv("REPOSTER_ITEM_LIMIT", "3")

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Feed.Source != "aww" {
		t.Errorf("expected source aww, got %s", cfg.Feed.Source)
	}
	if cfg.Destination.Token != "env-token" {
		t.Errorf("expected token from environment, got %q", cfg.Destination.Token)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.ItemLimit != 3 {
		t.Errorf("expected item limit 3, got %d", cfg.Pipeline.ItemLimit)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("REPOSTER_FEED_SOURCE", "aww")

	cfg, err := Load("", map[string]interface{}{
		"source":  "pics",
		"workers": 2,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.Source != "pics" {
		t.Errorf("expected flag to win over environment, got %s", cfg.Feed.Source)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Pipeline.Workers)
	}
}

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Feed.Source = "pics"
	cfg.Destination.Endpoint = "https://api.example/publish"
	cfg.Destination.Token = "token"
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validTestConfig()
	cfg.Feed.Source = ""
	cfg.Destination.Token = ""
	cfg.Pipeline.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	for _, want := range []string{"feed source", "credential", "worker count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected validation error to mention %q, got %v", want, err)
		}
	}
}

func TestValidateCapsWorkers(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pipeline.Workers = 64

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to reject an oversized worker pool")
	}
}
