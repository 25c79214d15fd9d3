package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("CINEFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("cinefinder")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".cinefinder"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	// SHUFFLE takes bool-ish strings: only "0" and "false" disable it,
	// everything else leaves it on.
	v.Set("crawl.shuffle", !shuffleOff(v.GetString("crawl.shuffle")))

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Crawl.Seeds = normalizeSeeds(cfg.Crawl.Seeds)

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// bindLegacyEnv maps the bare environment names the original deployment
// used onto their config keys, alongside the prefixed forms.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("crawl.seeds", "CINEFINDER_CRAWL_SEEDS", "SEED_URLS")
	v.BindEnv("crawl.max_items", "CINEFINDER_CRAWL_MAX_ITEMS", "MAX_ITEMS")
	v.BindEnv("crawl.max_pages", "CINEFINDER_CRAWL_MAX_PAGES", "MAX_PAGES")
	v.BindEnv("crawl.shuffle", "CINEFINDER_CRAWL_SHUFFLE", "SHUFFLE")
	v.BindEnv("crawl.random_seed", "CINEFINDER_CRAWL_RANDOM_SEED", "RANDOM_SEED")
	v.BindEnv("crawl.sample_rate", "CINEFINDER_CRAWL_SAMPLE_RATE", "SAMPLE_RATE")

	v.BindEnv("mongo.host", "CINEFINDER_MONGO_HOST", "MONGO_HOST")
	v.BindEnv("mongo.port", "CINEFINDER_MONGO_PORT", "MONGO_PORT")
	v.BindEnv("mongo.database", "CINEFINDER_MONGO_DATABASE", "MONGO_DB")
	v.BindEnv("mongo.collection", "CINEFINDER_MONGO_COLLECTION", "MONGO_COLLECTION")

	v.BindEnv("loader.data_file", "CINEFINDER_LOADER_DATA_FILE", "JSON_PATH", "DATA_FILE")
	v.BindEnv("loader.wait_timeout", "CINEFINDER_LOADER_WAIT_TIMEOUT", "WAIT_TIMEOUT")
}

// shuffleOff reports whether a SHUFFLE value disables shuffling.
func shuffleOff(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "false":
		return true
	}
	return false
}

// normalizeSeeds splits comma-packed entries (the SEED_URLS env form), trims,
// drops blanks, and falls back to the curated defaults when nothing is left.
func normalizeSeeds(seeds []string) []string {
	out := make([]string, 0, len(seeds))
	for _, entry := range seeds {
		for _, s := range strings.Split(entry, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultSeeds...)
	}
	return out
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawl.seeds", cfg.Crawl.Seeds)
	v.SetDefault("crawl.max_items", cfg.Crawl.MaxItems)
	v.SetDefault("crawl.max_pages", cfg.Crawl.MaxPages)
	v.SetDefault("crawl.sample_rate", cfg.Crawl.SampleRate)
	v.SetDefault("crawl.shuffle", cfg.Crawl.Shuffle)
	v.SetDefault("crawl.random_seed", cfg.Crawl.RandomSeed)
	v.SetDefault("crawl.allowed_domains", cfg.Crawl.AllowedDomains)
	v.SetDefault("crawl.concurrency", cfg.Crawl.Concurrency)
	v.SetDefault("crawl.respect_robots", cfg.Crawl.RespectRobots)

	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.download_delay", cfg.Fetcher.DownloadDelay)
	v.SetDefault("fetcher.autothrottle", cfg.Fetcher.AutoThrottle)
	v.SetDefault("fetcher.start_delay", cfg.Fetcher.StartDelay)
	v.SetDefault("fetcher.max_delay", cfg.Fetcher.MaxDelay)
	v.SetDefault("fetcher.target_concurrency", cfg.Fetcher.TargetConcurrency)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)

	v.SetDefault("mongo.uri", cfg.Mongo.URI)
	v.SetDefault("mongo.host", cfg.Mongo.Host)
	v.SetDefault("mongo.port", cfg.Mongo.Port)
	v.SetDefault("mongo.database", cfg.Mongo.Database)
	v.SetDefault("mongo.collection", cfg.Mongo.Collection)
	v.SetDefault("mongo.connect_timeout", cfg.Mongo.ConnectTimeout)
	v.SetDefault("mongo.ping_retries", cfg.Mongo.PingRetries)
	v.SetDefault("mongo.ping_interval", cfg.Mongo.PingInterval)

	v.SetDefault("loader.data_file", cfg.Loader.DataFile)
	v.SetDefault("loader.wait_timeout", cfg.Loader.WaitTimeout)
	v.SetDefault("loader.poll_interval", cfg.Loader.PollInterval)

	v.SetDefault("api.addr", cfg.API.Addr)
	v.SetDefault("api.request_timeout", cfg.API.RequestTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
