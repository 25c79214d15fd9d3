package cinefinder

import (
	"context"
	"testing"
	"time"

	"github.com/cinefinder/cinefinder/internal/config"
)

// --- Option Tests ---

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := []Option{
		WithSeeds("https://example.com/films/tops/top111"),
		WithMaxItems(10),
		WithMaxPages(2),
		WithSampleRate(0.5),
		WithoutShuffle(),
		WithRandomSeed("42"),
		WithConcurrency(3),
		WithAllowedDomains("example.com"),
		WithUserAgent("test-agent"),
		WithDownloadDelay(250 * time.Millisecond),
		WithRobotsRespect(false),
		WithOutput("jsonl", "out/films.jsonl"),
		WithVerbose(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Crawl.Seeds) != 1 || cfg.Crawl.Seeds[0] != "https://example.com/films/tops/top111" {
		t.Errorf("seeds = %v", cfg.Crawl.Seeds)
	}
	if cfg.Crawl.MaxItems != 10 {
		t.Errorf("max items = %d, want 10", cfg.Crawl.MaxItems)
	}
	if cfg.Crawl.MaxPages != 2 {
		t.Errorf("max pages = %d, want 2", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.SampleRate != 0.5 {
		t.Errorf("sample rate = %g, want 0.5", cfg.Crawl.SampleRate)
	}
	if cfg.Crawl.Shuffle {
		t.Error("shuffle should be off")
	}
	if cfg.Crawl.RandomSeed != "42" {
		t.Errorf("random seed = %q, want 42", cfg.Crawl.RandomSeed)
	}
	if cfg.Crawl.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Crawl.Concurrency)
	}
	if len(cfg.Crawl.AllowedDomains) != 1 || cfg.Crawl.AllowedDomains[0] != "example.com" {
		t.Errorf("allowed domains = %v", cfg.Crawl.AllowedDomains)
	}
	if cfg.Fetcher.UserAgent != "test-agent" {
		t.Errorf("user agent = %q", cfg.Fetcher.UserAgent)
	}
	if cfg.Fetcher.DownloadDelay != 250*time.Millisecond {
		t.Errorf("download delay = %s", cfg.Fetcher.DownloadDelay)
	}
	if cfg.Crawl.RespectRobots {
		t.Error("robots respect should be off")
	}
	if cfg.Storage.Type != "jsonl" || cfg.Storage.OutputPath != "out/films.jsonl" {
		t.Errorf("storage = %s %s", cfg.Storage.Type, cfg.Storage.OutputPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestOptionResultStaysValid(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, opt := range []Option{
		WithMaxItems(5),
		WithMaxPages(1),
		WithSampleRate(0.1),
		WithOutput("csv", "out/films.csv"),
	} {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestStartRejectsInvalidOptions(t *testing.T) {
	_, err := Start(context.Background(), WithMaxItems(0))
	if err == nil {
		t.Fatal("Start with zero item budget should fail")
	}
}
