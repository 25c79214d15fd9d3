package config

import (
	"fmt"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultSeeds are the curated listing pages a crawl starts from when no
// seeds are configured.
var DefaultSeeds = []string{
	"https://www.senscritique.com/films/tops/top111",
	"https://www.senscritique.com/liste/les_200_films_les_plus_notes_sur_sens_critique/1499333",
	"https://www.senscritique.com/liste/les_100_meilleurs_films_de_tous_les_temps/93309",
}

// Config is the root configuration for cinefinder.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"   yaml:"crawl"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"   yaml:"mongo"`
	Loader  LoaderConfig  `mapstructure:"loader"  yaml:"loader"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CrawlConfig is the crawl budget and scheduling policy. Seeds, budgets and
// sampling are immutable for the lifetime of one run.
type CrawlConfig struct {
	Seeds      []string `mapstructure:"seeds"       yaml:"seeds"`
	MaxItems   int      `mapstructure:"max_items"   yaml:"max_items"`
	MaxPages   int      `mapstructure:"max_pages"   yaml:"max_pages"`
	SampleRate float64  `mapstructure:"sample_rate" yaml:"sample_rate"`
	Shuffle    bool     `mapstructure:"shuffle"     yaml:"shuffle"`

	// AllowedDomains restricts the crawl to these domains and their
	// subdomains. Empty means no restriction.
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`

	// RandomSeed makes shuffling reproducible. Numeric strings are used as
	// is, anything else is hashed; empty means seed from the clock.
	RandomSeed string `mapstructure:"random_seed" yaml:"random_seed"`

	// Concurrency is the worker count draining the fetch queue. The target
	// site tolerates one request at a time, so the default stays 1.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	RespectRobots bool `mapstructure:"respect_robots" yaml:"respect_robots"`
}

// FetcherConfig controls the HTTP client and the politeness policy applied
// to every outbound fetch.
type FetcherConfig struct {
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"   yaml:"accept_language"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`

	// DownloadDelay is the minimum spacing between requests. The adaptive
	// throttle never drops below it.
	DownloadDelay time.Duration `mapstructure:"download_delay" yaml:"download_delay"`

	AutoThrottle      bool          `mapstructure:"autothrottle"       yaml:"autothrottle"`
	StartDelay        time.Duration `mapstructure:"start_delay"        yaml:"start_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"          yaml:"max_delay"`
	TargetConcurrency float64       `mapstructure:"target_concurrency" yaml:"target_concurrency"`
}

// StorageConfig controls where crawl output lands.
type StorageConfig struct {
	// Type is json, jsonl, csv, or mongo.
	Type string `mapstructure:"type" yaml:"type"`

	// OutputPath is the export file written by file-backed storage. The
	// loader reads the same path by default.
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	// BatchSize is the flush threshold for batched sinks.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// MongoConfig locates the films collection.
type MongoConfig struct {
	// URI overrides Host/Port when set.
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Host       string `mapstructure:"host"       yaml:"host"`
	Port       int    `mapstructure:"port"       yaml:"port"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// PingRetries x PingInterval bounds how long startup waits for the
	// server to come up before giving up.
	PingRetries  int           `mapstructure:"ping_retries"  yaml:"ping_retries"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// ServerURI returns the connection string, assembling one from host and port
// when no explicit URI is configured.
func (m *MongoConfig) ServerURI() string {
	if m.URI != "" {
		return m.URI
	}
	return fmt.Sprintf("mongodb://%s:%d", m.Host, m.Port)
}

// LoaderConfig controls the file-to-Mongo loader.
type LoaderConfig struct {
	// DataFile is the crawl export the loader ingests.
	DataFile string `mapstructure:"data_file" yaml:"data_file"`

	// WaitTimeout bounds, in seconds, how long the loader waits for the
	// export file to appear and be non-empty. Plain seconds rather than a
	// duration string because the WAIT_TIMEOUT env contract predates this
	// implementation.
	WaitTimeout int `mapstructure:"wait_timeout" yaml:"wait_timeout"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// APIConfig controls the browse service.
type APIConfig struct {
	Addr           string        `mapstructure:"addr"            yaml:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint exposed by crawl runs.
// The browse service always mounts /metrics on its own listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with the defaults the target site tolerates.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Seeds:          append([]string(nil), DefaultSeeds...),
			MaxItems:       250,
			MaxPages:       12,
			SampleRate:     1.0,
			Shuffle:        true,
			AllowedDomains: []string{"senscritique.com"},
			Concurrency:    1,
			RespectRobots:  true,
		},
		Fetcher: FetcherConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) " +
				"Chrome/120.0.0.0 Safari/537.36",
			AcceptLanguage:    "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
			RequestTimeout:    30 * time.Second,
			MaxRedirects:      10,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			IdleConnTimeout:   90 * time.Second,
			MaxIdleConns:      100,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
			DownloadDelay:     1 * time.Second,
			AutoThrottle:      true,
			StartDelay:        1 * time.Second,
			MaxDelay:          10 * time.Second,
			TargetConcurrency: 1.0,
		},
		Storage: StorageConfig{
			Type:       "json",
			OutputPath: "data/films.json",
			BatchSize:  50,
		},
		Mongo: MongoConfig{
			Host:           "localhost",
			Port:           27017,
			Database:       "cinefinder",
			Collection:     "films",
			ConnectTimeout: 10 * time.Second,
			PingRetries:    15,
			PingInterval:   2 * time.Second,
		},
		Loader: LoaderConfig{
			DataFile:     "data/films.json",
			WaitTimeout:  600,
			PollInterval: 2 * time.Second,
		},
		API: APIConfig{
			Addr:           ":5000",
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
