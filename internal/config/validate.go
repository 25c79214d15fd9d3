package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values. A bad budget value
// would otherwise silently misbehave mid-crawl, so everything fails fast here.
func Validate(cfg *Config) error {
	if len(cfg.Crawl.Seeds) == 0 {
		return fmt.Errorf("crawl.seeds must not be empty")
	}
	for _, seed := range cfg.Crawl.Seeds {
		if err := ValidateURL(seed); err != nil {
			return fmt.Errorf("invalid seed %q: %w", seed, err)
		}
	}
	if cfg.Crawl.MaxItems < 1 {
		return fmt.Errorf("crawl.max_items must be >= 1, got %d", cfg.Crawl.MaxItems)
	}
	if cfg.Crawl.MaxPages < 1 {
		return fmt.Errorf("crawl.max_pages must be >= 1, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.SampleRate <= 0 || cfg.Crawl.SampleRate > 1 {
		return fmt.Errorf("crawl.sample_rate must be in (0, 1], got %g", cfg.Crawl.SampleRate)
	}
	if cfg.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl.concurrency must be >= 1, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.Concurrency > 16 {
		return fmt.Errorf("crawl.concurrency must be <= 16, got %d", cfg.Crawl.Concurrency)
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.DownloadDelay < 0 {
		return fmt.Errorf("fetcher.download_delay must be >= 0")
	}
	if cfg.Fetcher.AutoThrottle {
		if cfg.Fetcher.StartDelay <= 0 {
			return fmt.Errorf("fetcher.start_delay must be > 0 when autothrottle is on")
		}
		if cfg.Fetcher.MaxDelay < cfg.Fetcher.StartDelay {
			return fmt.Errorf("fetcher.max_delay must be >= fetcher.start_delay")
		}
		if cfg.Fetcher.TargetConcurrency <= 0 {
			return fmt.Errorf("fetcher.target_concurrency must be > 0, got %g", cfg.Fetcher.TargetConcurrency)
		}
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongo": true, "mongodb": true,
	}
	named := 0
	for _, name := range strings.Split(cfg.Storage.Type, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if !validStorageTypes[name] {
			return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongo)", name)
		}
		named++
	}
	if named == 0 {
		return fmt.Errorf("storage.type must name at least one backend")
	}
	if cfg.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be >= 1, got %d", cfg.Storage.BatchSize)
	}

	if cfg.Mongo.URI == "" {
		if cfg.Mongo.Host == "" {
			return fmt.Errorf("mongo.host must not be empty")
		}
		if cfg.Mongo.Port < 1 || cfg.Mongo.Port > 65535 {
			return fmt.Errorf("mongo.port must be 1-65535, got %d", cfg.Mongo.Port)
		}
	}
	if cfg.Mongo.Database == "" || cfg.Mongo.Collection == "" {
		return fmt.Errorf("mongo.database and mongo.collection must not be empty")
	}

	if cfg.Loader.WaitTimeout < 0 {
		return fmt.Errorf("loader.wait_timeout must be >= 0, got %d", cfg.Loader.WaitTimeout)
	}
	if cfg.Loader.PollInterval <= 0 {
		return fmt.Errorf("loader.poll_interval must be > 0")
	}

	if cfg.API.Addr == "" {
		return fmt.Errorf("api.addr must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a crawl seed.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
