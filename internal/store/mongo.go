package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/types"
)

// Connect dials MongoDB and waits for it to answer pings. The retry window
// covers the container-orchestration case where the crawl output lands
// before the database finishes starting.
func Connect(ctx context.Context, cfg *config.MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.ServerURI()).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	retries := cfg.PingRetries
	if retries < 1 {
		retries = 1
	}

	var pingErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		pingErr = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if pingErr == nil {
			logger.Info("mongodb connected", "uri", cfg.ServerURI(), "attempt", attempt)
			return client, nil
		}

		logger.Info("waiting for mongodb",
			"attempt", attempt,
			"retries", retries,
			"error", pingErr,
		)
		select {
		case <-ctx.Done():
			client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(cfg.PingInterval):
		}
	}

	client.Disconnect(context.Background())
	return nil, fmt.Errorf("mongodb unreachable after %d attempts: %w", retries, pingErr)
}

// EnsureIndexes creates the unique url index that makes upserts idempotent.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create url index: %w", err)
	}
	return nil
}

// MongoStorage upserts films into the collection the browse API serves.
type MongoStorage struct {
	client *mongo.Client
	coll   *mongo.Collection
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewMongoStorage connects, ensures indexes, and returns a Mongo sink.
func NewMongoStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MongoStorage, error) {
	client, err := Connect(ctx, &cfg.Mongo, logger)
	if err != nil {
		return nil, err
	}

	coll := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	if err := EnsureIndexes(ctx, coll); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoStorage{
		client: client,
		coll:   coll,
		logger: logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// Store bulk-upserts a batch keyed on url, so re-crawled films update in
// place instead of duplicating.
func (s *MongoStorage) Store(films []*types.Film) error {
	if len(films) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(films))
	for _, film := range films {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"url": film.URL}).
			SetUpdate(bson.M{"$set": film}).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("mongodb bulk upsert: %w", err)
	}

	s.count += len(films)
	s.logger.Debug("films upserted",
		"batch", len(films),
		"matched", result.MatchedCount,
		"modified", result.ModifiedCount,
		"upserted", result.UpsertedCount,
		"total", s.count,
	)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_films", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
