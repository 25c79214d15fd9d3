package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/crawler"
	"github.com/cinefinder/cinefinder/internal/fetcher"
	"github.com/cinefinder/cinefinder/internal/observability"
	"github.com/cinefinder/cinefinder/internal/store"
)

var (
	crawlMaxItems    int
	crawlMaxPages    int
	crawlSampleRate  float64
	crawlNoShuffle   bool
	crawlRandomSeed  string
	crawlConcurrency int
	crawlDelay       string
	crawlUserAgent   string
	crawlMaxRetries  int
	crawlNoRobots    bool
	crawlOutput      string
	crawlFormat      string
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Run a bounded crawl and export film records",
		Long: `Run a polite, budgeted crawl starting from the configured seed listing
pages (or the given URLs), extract film metadata from each film page, and
write the records to the configured storage backend.`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawl,
	}

	cmd.Flags().IntVar(&crawlMaxItems, "max-items", 0, "film budget for this run (0 = use config default of 250)")
	cmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "listing page budget for this run (0 = use config default of 12)")
	cmd.Flags().Float64Var(&crawlSampleRate, "sample-rate", 0, "fraction of discovered film links to fetch, in (0,1] (0 = use config)")
	cmd.Flags().BoolVar(&crawlNoShuffle, "no-shuffle", false, "visit seeds and film links in discovery order")
	cmd.Flags().StringVar(&crawlRandomSeed, "seed", "", "random seed for reproducible shuffling")
	cmd.Flags().IntVarP(&crawlConcurrency, "concurrency", "n", 0, "number of crawl workers (0 = use config default of 1)")
	cmd.Flags().StringVar(&crawlDelay, "delay", "", "minimum delay between requests (e.g. 1s, 500ms)")
	cmd.Flags().StringVar(&crawlUserAgent, "user-agent", "", "custom User-Agent string")
	cmd.Flags().IntVar(&crawlMaxRetries, "max-retries", -1, "max retries per failed request (-1 = use config default of 3)")
	cmd.Flags().BoolVar(&crawlNoRobots, "no-robots", false, "ignore robots.txt (not recommended)")
	cmd.Flags().StringVarP(&crawlOutput, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&crawlFormat, "format", "f", "", "output format: json, jsonl, csv, mongo")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	for _, rawURL := range args {
		if err := config.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("invalid URL %q: %w", rawURL, err)
		}
	}

	applyCrawlOverrides(cfg, args)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)

	logger.Info("starting crawl",
		"seeds", len(cfg.Crawl.Seeds),
		"max_items", cfg.Crawl.MaxItems,
		"max_pages", cfg.Crawl.MaxPages,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
	)

	ctx := context.Background()

	c := crawler.New(cfg, logger)

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	c.SetFetcher(httpFetcher)

	metrics := observability.NewMetrics()
	c.SetMetrics(metrics)
	if cfg.Metrics.Enabled {
		metrics.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Path, c.Snapshot, logger)
	}

	sink, err := store.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	batch := store.NewBatcher(sink, cfg.Storage.BatchSize)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		c.Stop()
	}()

	start := time.Now()
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start crawler: %w", err)
	}

	// Drain the film stream into storage while the crawl runs.
	var stored int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for film := range c.Films() {
			if err := batch.Add(film); err != nil {
				logger.Error("store film failed", "url", film.URL, "error", err)
				continue
			}
			stored++
			metrics.FilmsStored(1)
		}
	}()

	c.Wait()
	<-done

	if err := batch.Close(); err != nil {
		return fmt.Errorf("flush storage: %w", err)
	}

	elapsed := time.Since(start)
	stats := c.Snapshot()

	logger.Info("crawl complete",
		"elapsed", elapsed,
		"pages", stats["pages_crawled"],
		"films", stats["films_scraped"],
		"stored", stored,
		"errors", stats["responses_error"],
		"bytes", stats["bytes_downloaded"],
	)

	fmt.Printf("\n✅ Crawl complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Pages:     %v listing pages processed\n", stats["pages_crawled"])
	fmt.Printf("   Films:     %v scraped, %v dropped, %d stored\n",
		stats["films_scraped"], stats["films_dropped"], stored)
	fmt.Printf("   Requests:  %v sent, %v failed\n", stats["requests_sent"], stats["requests_failed"])
	fmt.Printf("   Data:      %v bytes downloaded\n", stats["bytes_downloaded"])
	if cfg.Storage.Type != "mongo" {
		fmt.Printf("   Output:    %s\n", cfg.Storage.OutputPath)
	}

	if stats["films_scraped"] == 0 {
		fmt.Println("\n💡 No films were scraped. Check that the seed listing pages are reachable,")
		fmt.Println("   that robots.txt allows the crawl, and that the pages link to /film/ URLs.")
		fmt.Println("   Run with -v for per-request logging.")
	}

	return nil
}

// applyCrawlOverrides applies command-line flag values to the config.
// Positional URLs replace the configured seeds.
func applyCrawlOverrides(cfg *config.Config, seeds []string) {
	if len(seeds) > 0 {
		cfg.Crawl.Seeds = seeds
	}
	if crawlMaxItems > 0 {
		cfg.Crawl.MaxItems = crawlMaxItems
	}
	if crawlMaxPages > 0 {
		cfg.Crawl.MaxPages = crawlMaxPages
	}
	if crawlSampleRate > 0 {
		cfg.Crawl.SampleRate = crawlSampleRate
	}
	if crawlNoShuffle {
		cfg.Crawl.Shuffle = false
	}
	if crawlRandomSeed != "" {
		cfg.Crawl.RandomSeed = crawlRandomSeed
	}
	if crawlConcurrency > 0 {
		cfg.Crawl.Concurrency = crawlConcurrency
	}
	if crawlDelay != "" {
		if d, err := time.ParseDuration(crawlDelay); err == nil {
			cfg.Fetcher.DownloadDelay = d
		}
	}
	if crawlUserAgent != "" {
		cfg.Fetcher.UserAgent = crawlUserAgent
	}
	if crawlMaxRetries >= 0 {
		cfg.Fetcher.MaxRetries = crawlMaxRetries
	}
	if crawlNoRobots {
		cfg.Crawl.RespectRobots = false
	}
	if crawlOutput != "" {
		cfg.Storage.OutputPath = crawlOutput
	}
	if crawlFormat != "" {
		cfg.Storage.Type = strings.ToLower(crawlFormat)
	}
}
