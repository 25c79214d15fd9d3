package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/types"
)

// ErrNotFound covers both a malformed film id and an id with no document.
var ErrNotFound = errors.New("film not found")

// maxFindLimit bounds a single browse query.
const maxFindLimit = 120

// FilmFilter narrows a browse query. Zero values mean "no constraint";
// MinRating is a pointer because a threshold of 0 still excludes unrated
// films.
type FilmFilter struct {
	Title     string
	Director  string
	Genre     string
	MinRating *float64
	Sort      string
	Limit     int64
}

// Catalog is the read side of the films collection.
type Catalog interface {
	// Find returns films matching the filter, sorted and limited.
	Find(ctx context.Context, filter FilmFilter) ([]*types.Film, error)

	// GetByID returns one film by its hex object id. Unknown and malformed
	// ids both yield ErrNotFound.
	GetByID(ctx context.Context, id string) (*types.Film, error)

	// Genres returns the distinct non-blank genres, sorted without case.
	Genres(ctx context.Context) ([]string, error)

	// Stats aggregates collection-wide figures for the stats endpoint.
	Stats(ctx context.Context) (*CatalogStats, error)

	// Ping reports whether the backing store answers.
	Ping(ctx context.Context) error
}

// NameCount is one entry of a frequency ranking.
type NameCount struct {
	Name  string `json:"name" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// BucketCount is one bar of the rating histogram.
type BucketCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DecadeCount is the number of films released in one decade.
type DecadeCount struct {
	Decade int64 `json:"decade"`
	Count  int64 `json:"count"`
}

// CatalogStats is the stats endpoint payload.
type CatalogStats struct {
	TotalFilms   int64         `json:"total_films"`
	AvgRating    *float64      `json:"avg_rating"`
	RatedCount   int64         `json:"rated_count"`
	WithDesc     int64         `json:"with_desc"`
	WithPoster   int64         `json:"with_poster"`
	PctDesc      float64       `json:"pct_desc"`
	PctPoster    float64       `json:"pct_poster"`
	TopGenres    []NameCount   `json:"top_genres"`
	TopDirectors []NameCount   `json:"top_directors"`
	RatingHist   []BucketCount `json:"rating_histogram"`
	ByDecade     []DecadeCount `json:"films_by_decade"`
}

var sortSpecs = map[string]bson.D{
	"year_desc":   {{Key: "year", Value: -1}},
	"year_asc":    {{Key: "year", Value: 1}},
	"rating_desc": {{Key: "rating", Value: -1}},
	"rating_asc":  {{Key: "rating", Value: 1}},
	"title_asc":   {{Key: "title", Value: 1}},
	"title_desc":  {{Key: "title", Value: -1}},
}

// MongoCatalog implements Catalog over the films collection.
type MongoCatalog struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

// NewMongoCatalog wraps an established client. The caller owns the client's
// lifetime.
func NewMongoCatalog(client *mongo.Client, cfg *config.MongoConfig, logger *slog.Logger) *MongoCatalog {
	return &MongoCatalog{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger.With("component", "catalog"),
	}
}

// caseInsensitive builds an escaped substring regex, so user input is never
// interpreted as a pattern.
func caseInsensitive(text string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"}
}

func (c *MongoCatalog) Find(ctx context.Context, filter FilmFilter) ([]*types.Film, error) {
	query := bson.M{}
	if filter.Title != "" {
		query["title"] = caseInsensitive(filter.Title)
	}
	if filter.Director != "" {
		// directors is an array; the regex matches when any element does.
		query["directors"] = caseInsensitive(filter.Director)
	}
	if filter.Genre != "" {
		query["genres"] = filter.Genre
	}
	if filter.MinRating != nil {
		query["rating"] = bson.M{"$gte": *filter.MinRating}
	}

	sortSpec, ok := sortSpecs[filter.Sort]
	if !ok {
		sortSpec = sortSpecs["year_desc"]
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxFindLimit {
		limit = maxFindLimit
	}

	cursor, err := c.coll.Find(ctx, query, options.Find().SetSort(sortSpec).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("find films: %w", err)
	}

	films := make([]*types.Film, 0, limit)
	if err := cursor.All(ctx, &films); err != nil {
		return nil, fmt.Errorf("decode films: %w", err)
	}
	return films, nil
}

func (c *MongoCatalog) GetByID(ctx context.Context, id string) (*types.Film, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var film types.Film
	err = c.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&film)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find film %s: %w", id, err)
	}
	return &film, nil
}

func (c *MongoCatalog) Genres(ctx context.Context) ([]string, error) {
	values, err := c.coll.Distinct(ctx, "genres", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct genres: %w", err)
	}

	seen := make(map[string]struct{}, len(values))
	genres := make([]string, 0, len(values))
	for _, v := range values {
		g, ok := v.(string)
		if !ok || strings.TrimSpace(g) == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		genres = append(genres, g)
	}

	sort.Slice(genres, func(i, j int) bool {
		return strings.ToLower(genres[i]) < strings.ToLower(genres[j])
	})
	return genres, nil
}

func (c *MongoCatalog) Stats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{
		TopGenres:    []NameCount{},
		TopDirectors: []NameCount{},
		RatingHist:   []BucketCount{},
		ByDecade:     []DecadeCount{},
	}

	total, err := c.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count films: %w", err)
	}
	stats.TotalFilms = total

	if err := c.avgRating(ctx, stats); err != nil {
		return nil, err
	}

	nonBlankString := bson.M{"$type": "string", "$ne": ""}
	if stats.WithDesc, err = c.coll.CountDocuments(ctx, bson.M{"description": nonBlankString}); err != nil {
		return nil, fmt.Errorf("count descriptions: %w", err)
	}
	if stats.WithPoster, err = c.coll.CountDocuments(ctx, bson.M{"poster_url": nonBlankString}); err != nil {
		return nil, fmt.Errorf("count posters: %w", err)
	}
	if total > 0 {
		stats.PctDesc = round1(float64(stats.WithDesc) / float64(total) * 100)
		stats.PctPoster = round1(float64(stats.WithPoster) / float64(total) * 100)
	}

	if stats.TopGenres, err = c.unwoundCounts(ctx, "genres", 12); err != nil {
		return nil, err
	}
	if stats.TopDirectors, err = c.unwoundCounts(ctx, "directors", 10); err != nil {
		return nil, err
	}
	if stats.RatingHist, err = c.ratingHistogram(ctx); err != nil {
		return nil, err
	}
	if stats.ByDecade, err = c.filmsByDecade(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}

func (c *MongoCatalog) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *MongoCatalog) avgRating(ctx context.Context, stats *CatalogStats) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "rating", Value: bson.D{{Key: "$type", Value: "number"}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate avg rating: %w", err)
	}

	var rows []struct {
		Avg   *float64 `bson:"avg"`
		Count int64    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return fmt.Errorf("decode avg rating: %w", err)
	}
	if len(rows) > 0 && rows[0].Avg != nil {
		avg := round2(*rows[0].Avg)
		stats.AvgRating = &avg
		stats.RatedCount = rows[0].Count
	}
	return nil
}

// unwoundCounts ranks array-field elements by frequency, count descending
// with name as the tiebreak.
func (c *MongoCatalog) unwoundCounts(ctx context.Context, field string, limit int) ([]NameCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + field},
			{Key: "preserveNullAndEmptyArrays", Value: false},
		}}},
		{{Key: "$match", Value: bson.D{{Key: field, Value: bson.D{
			{Key: "$type", Value: "string"},
			{Key: "$ne", Value: ""},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", field, err)
	}

	counts := []NameCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("decode %s counts: %w", field, err)
	}
	return counts, nil
}

func (c *MongoCatalog) ratingHistogram(ctx context.Context) ([]BucketCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "rating", Value: bson.D{{Key: "$type", Value: "number"}}}}}},
		{{Key: "$bucket", Value: bson.D{
			{Key: "groupBy", Value: "$rating"},
			{Key: "boundaries", Value: bson.A{0, 2, 4, 6, 8, 10.1}},
			{Key: "default", Value: "other"},
			{Key: "output", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate rating histogram: %w", err)
	}

	var rows []struct {
		ID    any   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode rating histogram: %w", err)
	}

	hist := make([]BucketCount, 0, len(rows))
	for _, row := range rows {
		hist = append(hist, BucketCount{Label: bucketLabel(row.ID), Count: row.Count})
	}
	return hist, nil
}

// bucketLabel maps a bucket's lower boundary to its display range.
func bucketLabel(id any) string {
	low, ok := toFloat64(id)
	if !ok {
		return "other"
	}
	switch low {
	case 0:
		return "0-2"
	case 2:
		return "2-4"
	case 4:
		return "4-6"
	case 6:
		return "6-8"
	case 8:
		return "8-10"
	default:
		return fmt.Sprintf("%g", low)
	}
}

func (c *MongoCatalog) filmsByDecade(ctx context.Context) ([]DecadeCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "year", Value: bson.D{{Key: "$type", Value: "number"}}}}}},
		{{Key: "$addFields", Value: bson.D{{Key: "decade", Value: bson.D{
			{Key: "$subtract", Value: bson.A{"$year", bson.D{{Key: "$mod", Value: bson.A{"$year", 10}}}}},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$decade"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate decades: %w", err)
	}

	var rows []struct {
		ID    any   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode decades: %w", err)
	}

	decades := make([]DecadeCount, 0, len(rows))
	for _, row := range rows {
		if d, ok := toFloat64(row.ID); ok {
			decades = append(decades, DecadeCount{Decade: int64(d), Count: row.Count})
		}
	}
	return decades, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
