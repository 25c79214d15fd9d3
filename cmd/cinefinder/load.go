package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/loader"
)

var (
	loadDataFile    string
	loadWaitTimeout int
)

// loadCmd creates the "load" subcommand.
func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a crawl export into MongoDB",
		Long: `Wait for the crawl export file to appear, then bulk-upsert its records
into the films collection keyed on url. Safe to run repeatedly; reloading
the same export modifies documents in place instead of duplicating them.`,
		RunE: runLoad,
	}

	cmd.Flags().StringVar(&loadDataFile, "data-file", "", "crawl export to load (default from config)")
	cmd.Flags().IntVar(&loadWaitTimeout, "wait-timeout", 0, "seconds to wait for the export file (0 = use config default of 600)")

	return cmd
}

// runLoad executes the load command.
func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if loadDataFile != "" {
		cfg.Loader.DataFile = loadDataFile
	}
	if loadWaitTimeout > 0 {
		cfg.Loader.WaitTimeout = loadWaitTimeout
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := loader.New(cfg, logger).Run(ctx); err != nil {
		return err
	}

	fmt.Printf("\n✅ Load complete in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Source:    %s\n", cfg.Loader.DataFile)
	fmt.Printf("   Target:    %s.%s\n", cfg.Mongo.Database, cfg.Mongo.Collection)
	return nil
}
