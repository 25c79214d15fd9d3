// Package store persists crawled films. File-backed sinks cover the export
// formats the loader and ad-hoc analysis consume; the Mongo sink upserts
// straight into the films collection the browse API reads.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/types"
)

// Storage is the interface for all film sinks.
type Storage interface {
	// Store persists a batch of films.
	Store(films []*types.Film) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// New builds the sink selected by cfg.Storage.Type. A comma-separated type
// list fans out to every named sink.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	names := strings.Split(cfg.Storage.Type, ",")

	var backends []Storage
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}

		backend, err := newBackend(ctx, name, cfg, logger)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, err
		}
		backends = append(backends, backend)
	}

	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no storage type configured")
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorage(backends, logger), nil
	}
}

func newBackend(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	switch name {
	case "json":
		return NewJSONStorage(outputPathFor(cfg.Storage.OutputPath, "json"), logger)
	case "jsonl":
		return NewJSONLStorage(outputPathFor(cfg.Storage.OutputPath, "jsonl"), logger)
	case "csv":
		return NewCSVStorage(outputPathFor(cfg.Storage.OutputPath, "csv"), logger)
	case "mongo", "mongodb":
		return NewMongoStorage(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", name)
	}
}

// outputPathFor aligns the configured output path with a sink's format,
// swapping the extension when they disagree.
func outputPathFor(path, ext string) string {
	if path == "" {
		return filepath.Join("data", "films."+ext)
	}
	if strings.TrimPrefix(filepath.Ext(path), ".") == ext {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

// Batcher buffers films and forwards them to a sink in fixed-size batches.
type Batcher struct {
	dst  Storage
	size int
	mu   sync.Mutex
	buf  []*types.Film
}

// NewBatcher wraps a sink with batching. Sizes below 1 flush every film
// immediately.
func NewBatcher(dst Storage, size int) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		dst:  dst,
		size: size,
		buf:  make([]*types.Film, 0, size),
	}
}

// Add buffers one film, flushing when the batch is full.
func (b *Batcher) Add(film *types.Film) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, film)
	if len(b.buf) >= b.size {
		return b.flushLocked()
	}
	return nil
}

// Flush forwards any buffered films.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Batcher) flushLocked() error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = make([]*types.Film, 0, b.size)
	return b.dst.Store(batch)
}

// Close flushes the remainder and closes the underlying sink.
func (b *Batcher) Close() error {
	flushErr := b.Flush()
	closeErr := b.dst.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes films to multiple sinks simultaneously.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a sink that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(films []*types.Film) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(films); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
