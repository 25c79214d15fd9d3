package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cinefinder/cinefinder/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cinefinder",
		Short: "cinefinder — polite film-metadata crawler and browse service",
		Long: `cinefinder crawls a movie-review site, extracts structured film metadata,
loads it into MongoDB, and serves a filterable browse API with aggregate stats.

Commands:
  • crawl  — run a bounded, polite crawl and export film records
  • load   — wait for a crawl export and bulk-upsert it into MongoDB
  • serve  — run the JSON browse API over the films collection
  • config — print the effective configuration
  • version — print version information

The crawl is budgeted (MAX_ITEMS, MAX_PAGES), deduplicating, and rate limited
with an adaptive politeness throttle. Extraction reads each film page's
JSON-LD with OpenGraph and <title> fallbacks.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cinefinder %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Crawl:\n")
			fmt.Printf("  Seeds:             %d configured\n", len(cfg.Crawl.Seeds))
			for _, seed := range cfg.Crawl.Seeds {
				fmt.Printf("    - %s\n", seed)
			}
			fmt.Printf("  Max Items:         %d\n", cfg.Crawl.MaxItems)
			fmt.Printf("  Max Pages:         %d\n", cfg.Crawl.MaxPages)
			fmt.Printf("  Sample Rate:       %.2f\n", cfg.Crawl.SampleRate)
			fmt.Printf("  Shuffle:           %v\n", cfg.Crawl.Shuffle)
			fmt.Printf("  Random Seed:       %s\n", orUnset(cfg.Crawl.RandomSeed))
			fmt.Printf("  Concurrency:       %d\n", cfg.Crawl.Concurrency)
			fmt.Printf("  Allowed Domains:   %s\n", strings.Join(cfg.Crawl.AllowedDomains, ", "))
			fmt.Printf("  Respect robots.txt: %v\n", cfg.Crawl.RespectRobots)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Download Delay:    %s\n", cfg.Fetcher.DownloadDelay)
			fmt.Printf("  Auto-Throttle:     %v (start %s, max %s)\n",
				cfg.Fetcher.AutoThrottle, cfg.Fetcher.StartDelay, cfg.Fetcher.MaxDelay)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMongo:\n")
			fmt.Printf("  URI:               %s\n", cfg.Mongo.ServerURI())
			fmt.Printf("  Database:          %s\n", cfg.Mongo.Database)
			fmt.Printf("  Collection:        %s\n", cfg.Mongo.Collection)
			fmt.Printf("\nLoader:\n")
			fmt.Printf("  Data File:         %s\n", cfg.Loader.DataFile)
			fmt.Printf("  Wait Timeout:      %ds\n", cfg.Loader.WaitTimeout)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Addr:              %s\n", cfg.API.Addr)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

// setupLogger creates the structured logger the whole process shares.
func setupLogger(cfg *config.Config) *slog.Logger {
	if verbose {
		cfg.Logging.Level = "debug"
	}

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
