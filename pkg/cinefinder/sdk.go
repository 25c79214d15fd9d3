// Package cinefinder provides a public SDK for embedding the film crawler.
//
// Example usage:
//
//	films, err := cinefinder.Crawl(ctx,
//	    cinefinder.WithMaxItems(50),
//	    cinefinder.WithMaxPages(3),
//	    cinefinder.WithRandomSeed("42"),
//	)
//
// For streaming consumption:
//
//	run, err := cinefinder.Start(ctx, cinefinder.WithMaxItems(50))
//	if err != nil { ... }
//	go func() {
//	    for film := range run.Films() {
//	        fmt.Println(film.Title)
//	    }
//	}()
//	run.Wait()
package cinefinder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/crawler"
	"github.com/cinefinder/cinefinder/internal/fetcher"
	"github.com/cinefinder/cinefinder/internal/store"
	"github.com/cinefinder/cinefinder/internal/types"
)

// Film is one scraped film record.
type Film = types.Film

// Option configures a crawl.
type Option func(*config.Config)

// WithSeeds replaces the default listing seeds.
func WithSeeds(urls ...string) Option {
	return func(c *config.Config) { c.Crawl.Seeds = urls }
}

// WithMaxItems caps the number of films scheduled for scraping.
func WithMaxItems(n int) Option {
	return func(c *config.Config) { c.Crawl.MaxItems = n }
}

// WithMaxPages caps the number of listing pages processed.
func WithMaxPages(n int) Option {
	return func(c *config.Config) { c.Crawl.MaxPages = n }
}

// WithSampleRate keeps only a fraction of each page's film candidates.
func WithSampleRate(rate float64) Option {
	return func(c *config.Config) { c.Crawl.SampleRate = rate }
}

// WithoutShuffle makes scheduling order deterministic.
func WithoutShuffle() Option {
	return func(c *config.Config) { c.Crawl.Shuffle = false }
}

// WithRandomSeed makes shuffling reproducible.
func WithRandomSeed(seed string) Option {
	return func(c *config.Config) { c.Crawl.RandomSeed = seed }
}

// WithConcurrency sets the crawl worker count.
func WithConcurrency(n int) Option {
	return func(c *config.Config) { c.Crawl.Concurrency = n }
}

// WithAllowedDomains restricts the crawl to the given domains and their
// subdomains.
func WithAllowedDomains(domains ...string) Option {
	return func(c *config.Config) { c.Crawl.AllowedDomains = domains }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Fetcher.UserAgent = ua }
}

// WithDownloadDelay sets the minimum spacing between requests.
func WithDownloadDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Fetcher.DownloadDelay = d }
}

// WithRobotsRespect enables or disables the robots.txt gate.
func WithRobotsRespect(respect bool) Option {
	return func(c *config.Config) { c.Crawl.RespectRobots = respect }
}

// WithOutput sets the storage format and path for the crawl export. Every
// run persists to the configured storage; the default is a JSON array at
// data/films.json.
func WithOutput(format, path string) Option {
	return func(c *config.Config) {
		c.Storage.Type = format
		c.Storage.OutputPath = path
	}
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// Run is a crawl in progress.
type Run struct {
	crawler *crawler.Crawler
	films   chan *Film
	drained chan struct{}
}

// Start launches a crawl and returns immediately. Consume Films and call
// Wait to finish. Scraped films are also written to the configured storage.
func Start(ctx context.Context, opts ...Option) (*Run, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid crawl options: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c := crawler.New(cfg, logger)
	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	c.SetFetcher(httpFetcher)

	sink, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	batch := store.NewBatcher(sink, cfg.Storage.BatchSize)

	if err := c.Start(ctx); err != nil {
		sink.Close()
		return nil, err
	}

	run := &Run{
		crawler: c,
		// Buffered to the item budget so a caller that only calls Wait,
		// without consuming Films, cannot stall the crawl.
		films:   make(chan *Film, cfg.Crawl.MaxItems),
		drained: make(chan struct{}),
	}

	go func() {
		defer close(run.drained)
		for film := range c.Films() {
			if err := batch.Add(film); err != nil {
				logger.Error("store film failed", "url", film.URL, "error", err)
			}
			run.films <- film
		}
		close(run.films)
		if err := batch.Close(); err != nil {
			logger.Error("flush storage failed", "error", err)
		}
	}()

	return run, nil
}

// Films returns the stream of scraped films. The channel closes when the
// crawl finishes.
func (r *Run) Films() <-chan *Film {
	return r.films
}

// Wait blocks until the crawl drains, the film stream is closed, and the
// storage export is flushed.
func (r *Run) Wait() {
	r.crawler.Wait()
	<-r.drained
}

// Stop requests a graceful stop.
func (r *Run) Stop() {
	r.crawler.Stop()
}

// Snapshot returns crawl progress counters.
func (r *Run) Snapshot() map[string]any {
	return r.crawler.Snapshot()
}

// Crawl runs a complete crawl and collects every scraped film.
func Crawl(ctx context.Context, opts ...Option) ([]*Film, error) {
	run, err := Start(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var films []*Film
	done := make(chan struct{})
	go func() {
		for film := range run.Films() {
			films = append(films, film)
		}
		close(done)
	}()

	run.Wait()
	<-done
	return films, nil
}
