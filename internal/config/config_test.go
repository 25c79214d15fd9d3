package config

import (
	"strings"
	"testing"
	"time"
)

// --- Default Config Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Crawl.MaxItems != 250 {
		t.Errorf("expected max_items 250, got %d", cfg.Crawl.MaxItems)
	}
	if cfg.Crawl.MaxPages != 12 {
		t.Errorf("expected max_pages 12, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.SampleRate != 1.0 {
		t.Errorf("expected sample_rate 1.0, got %g", cfg.Crawl.SampleRate)
	}
	if !cfg.Crawl.Shuffle {
		t.Error("expected shuffle on by default")
	}
	if cfg.Crawl.Concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", cfg.Crawl.Concurrency)
	}
	if len(cfg.Crawl.Seeds) != 3 {
		t.Fatalf("expected 3 default seeds, got %d", len(cfg.Crawl.Seeds))
	}
	for _, seed := range cfg.Crawl.Seeds {
		if !strings.Contains(seed, "senscritique.com") {
			t.Errorf("unexpected default seed %q", seed)
		}
	}
	if !strings.Contains(cfg.Fetcher.UserAgent, "Chrome/120") {
		t.Errorf("unexpected user agent %q", cfg.Fetcher.UserAgent)
	}
	if cfg.Fetcher.MaxDelay != 10*time.Second {
		t.Errorf("expected max_delay 10s, got %s", cfg.Fetcher.MaxDelay)
	}
	if cfg.Mongo.Database != "cinefinder" || cfg.Mongo.Collection != "films" {
		t.Errorf("unexpected mongo target %s/%s", cfg.Mongo.Database, cfg.Mongo.Collection)
	}
	if cfg.Loader.WaitTimeout != 600 {
		t.Errorf("expected wait_timeout 600, got %d", cfg.Loader.WaitTimeout)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// --- Environment Loading Tests ---

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEED_URLS", " https://example.com/liste/a/1 , https://example.com/liste/b/2 ,")
	t.Setenv("MAX_ITEMS", "40")
	t.Setenv("MAX_PAGES", "3")
	t.Setenv("SAMPLE_RATE", "0.25")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("WAIT_TIMEOUT", "30")
	t.Setenv("MONGO_DB", "cinefinder_test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Crawl.Seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d: %v", len(cfg.Crawl.Seeds), cfg.Crawl.Seeds)
	}
	if cfg.Crawl.Seeds[0] != "https://example.com/liste/a/1" {
		t.Errorf("seed not trimmed: %q", cfg.Crawl.Seeds[0])
	}
	if cfg.Crawl.MaxItems != 40 {
		t.Errorf("expected max_items 40, got %d", cfg.Crawl.MaxItems)
	}
	if cfg.Crawl.MaxPages != 3 {
		t.Errorf("expected max_pages 3, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.SampleRate != 0.25 {
		t.Errorf("expected sample_rate 0.25, got %g", cfg.Crawl.SampleRate)
	}
	if cfg.Crawl.RandomSeed != "42" {
		t.Errorf("expected random_seed %q, got %q", "42", cfg.Crawl.RandomSeed)
	}
	if cfg.Loader.WaitTimeout != 30 {
		t.Errorf("expected wait_timeout 30, got %d", cfg.Loader.WaitTimeout)
	}
	if cfg.Mongo.Database != "cinefinder_test" {
		t.Errorf("expected database cinefinder_test, got %q", cfg.Mongo.Database)
	}
}

func TestLoadEmptySeedsFallsBack(t *testing.T) {
	t.Setenv("SEED_URLS", "  ,  , ")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Crawl.Seeds) != len(DefaultSeeds) {
		t.Errorf("expected default seeds, got %v", cfg.Crawl.Seeds)
	}
}

func TestLoadShuffleValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"0", false},
		{"false", false},
		{"False", false},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("SHUFFLE", tt.value)
			}
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Crawl.Shuffle != tt.want {
				t.Errorf("SHUFFLE=%q: expected shuffle=%v, got %v", tt.value, tt.want, cfg.Crawl.Shuffle)
			}
		})
	}
}

func TestLoadInvalidNumericFailsFast(t *testing.T) {
	t.Setenv("MAX_ITEMS", "lots")

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric MAX_ITEMS")
	}
}

// --- Validation Tests ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero max_items", func(c *Config) { c.Crawl.MaxItems = 0 }, true},
		{"negative max_pages", func(c *Config) { c.Crawl.MaxPages = -1 }, true},
		{"sample_rate zero", func(c *Config) { c.Crawl.SampleRate = 0 }, true},
		{"sample_rate above one", func(c *Config) { c.Crawl.SampleRate = 1.5 }, true},
		{"no seeds", func(c *Config) { c.Crawl.Seeds = nil }, true},
		{"bad seed scheme", func(c *Config) { c.Crawl.Seeds = []string{"ftp://example.com"} }, true},
		{"zero concurrency", func(c *Config) { c.Crawl.Concurrency = 0 }, true},
		{"max_delay below start_delay", func(c *Config) { c.Fetcher.MaxDelay = c.Fetcher.StartDelay / 2 }, true},
		{"bad storage type", func(c *Config) { c.Storage.Type = "parquet" }, true},
		{"storage fan-out list", func(c *Config) { c.Storage.Type = "json,mongo" }, false},
		{"empty storage list", func(c *Config) { c.Storage.Type = ", ," }, true},
		{"bad mongo port", func(c *Config) { c.Mongo.Port = 70000 }, true},
		{"mongo uri skips host check", func(c *Config) { c.Mongo.URI = "mongodb://db:27017"; c.Mongo.Host = "" }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://www.senscritique.com/films/tops/top111"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := ValidateURL("not a url"); err == nil {
		t.Error("expected error for junk URL")
	}
	if err := ValidateURL("file:///etc/passwd"); err == nil {
		t.Error("expected error for non-http scheme")
	}
}
