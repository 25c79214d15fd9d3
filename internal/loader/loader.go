// Package loader moves a finished crawl export into MongoDB. It waits for
// the export file to appear, normalizes each record, and bulk-upserts keyed
// on url so repeated loads stay idempotent.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/store"
	"github.com/cinefinder/cinefinder/internal/types"
)

const (
	// loadBatchSize is the upsert batch handed to one bulk write.
	loadBatchSize = 500

	// loadWorkers bounds concurrent bulk writes. Batches touch disjoint
	// documents, so unordered concurrent writes are safe.
	loadWorkers = 4
)

// Loader runs the export-to-Mongo pipeline.
type Loader struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Loader.
func New(cfg *config.Config, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:    cfg,
		logger: logger.With("component", "loader"),
	}
}

// WaitForFile blocks until the path exists and is non-empty, polling at the
// configured interval. The crawl and the loader start together under
// orchestration, so the export usually lands mid-wait.
func (l *Loader) WaitForFile(ctx context.Context, path string) error {
	interval := l.cfg.Loader.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := time.Duration(l.cfg.Loader.WaitTimeout) * time.Second
	deadline := time.Now().Add(timeout)

	for {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("export file %s missing or empty after %s", path, timeout)
		}

		l.logger.Info("waiting for export file", "path", path)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ReadFilms parses the export file. The expected shape is a JSON array; an
// object map is tolerated by taking its values, and line-delimited records
// cover the jsonl backend. Entries that do not decode as film records are
// counted, not fatal.
func ReadFilms(path string) ([]*types.Film, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read export: %w", err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		var byKey map[string]json.RawMessage
		if err2 := json.Unmarshal(data, &byKey); err2 == nil {
			for _, row := range byKey {
				rows = append(rows, row)
			}
		} else if lines, err3 := decodeLines(data); err3 == nil {
			rows = lines
		} else {
			return nil, 0, fmt.Errorf("parse export: %w", err)
		}
	}

	films := make([]*types.Film, 0, len(rows))
	undecodable := 0
	for _, row := range rows {
		var film types.Film
		if err := json.Unmarshal(row, &film); err != nil {
			undecodable++
			continue
		}
		films = append(films, &film)
	}
	return films, undecodable, nil
}

// decodeLines parses line-delimited JSON. Every non-blank line must be a
// valid JSON value or the file is not jsonl.
func decodeLines(data []byte) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("record %d is not valid JSON", len(rows)+1)
		}
		rows = append(rows, json.RawMessage(line))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no records")
	}
	return rows, nil
}

// normalize drops records without a usable url, trims the rest, and stamps
// a scrape time on records that arrived without one.
func normalize(films []*types.Film) (kept []*types.Film, skipped int) {
	now := time.Now().Unix()
	for _, film := range films {
		url := strings.TrimSpace(film.URL)
		if url == "" {
			skipped++
			continue
		}
		film.URL = url
		if film.ScrapedAt == 0 {
			film.ScrapedAt = now
		}
		kept = append(kept, film)
	}
	return kept, skipped
}

// Run executes the full load: wait, read, normalize, upsert.
func (l *Loader) Run(ctx context.Context) error {
	path := l.cfg.Loader.DataFile
	l.logger.Info("loader starting",
		"data_file", path,
		"wait_timeout_sec", l.cfg.Loader.WaitTimeout,
	)

	if err := l.WaitForFile(ctx, path); err != nil {
		return err
	}

	films, undecodable, err := ReadFilms(path)
	if err != nil {
		return err
	}
	l.logger.Info("export read", "records", len(films), "undecodable", undecodable)

	kept, blankURL := normalize(films)
	skipped := undecodable + blankURL
	l.logger.Info("records normalized", "valid", len(kept), "skipped", skipped)

	if len(kept) == 0 {
		l.logger.Info("nothing to load")
		return nil
	}

	client, err := store.Connect(ctx, &l.cfg.Mongo, l.logger)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(disconnectCtx)
	}()

	coll := client.Database(l.cfg.Mongo.Database).Collection(l.cfg.Mongo.Collection)
	if err := store.EnsureIndexes(ctx, coll); err != nil {
		// An index that already exists with the same spec is not an error;
		// anything else still lets the upserts proceed.
		l.logger.Warn("url index not created", "error", err)
	}

	matched, modified, upserted, err := l.upsertAll(ctx, coll, kept)
	if err != nil {
		return err
	}

	l.logger.Info("bulk upsert complete",
		"matched", matched,
		"modified", modified,
		"upserted", upserted,
	)
	return nil
}

// upsertAll fans the records out over bounded concurrent bulk writes and
// aggregates the result counts.
func (l *Loader) upsertAll(ctx context.Context, coll *mongo.Collection, films []*types.Film) (matched, modified, upserted int64, err error) {
	var matchedN, modifiedN, upsertedN atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadWorkers)

	for start := 0; start < len(films); start += loadBatchSize {
		end := min(start+loadBatchSize, len(films))
		batch := films[start:end]

		g.Go(func() error {
			models := make([]mongo.WriteModel, 0, len(batch))
			for _, film := range batch {
				models = append(models, mongo.NewUpdateOneModel().
					SetFilter(bson.M{"url": film.URL}).
					SetUpdate(bson.M{"$set": film}).
					SetUpsert(true))
			}

			result, err := coll.BulkWrite(gctx, models, options.BulkWrite().SetOrdered(false))
			if err != nil {
				return fmt.Errorf("bulk upsert: %w", err)
			}
			matchedN.Add(result.MatchedCount)
			modifiedN.Add(result.ModifiedCount)
			upsertedN.Add(result.UpsertedCount)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, 0, 0, err
	}
	return matchedN.Load(), modifiedN.Load(), upsertedN.Load(), nil
}
