package types

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Film is the unit of crawler output: one record per film page.
// Optional numeric fields are pointers so that "absent" survives the trip
// through JSON export, the Mongo loader, and the browse API unchanged.
type Film struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	URL         string             `bson:"url" json:"url"`
	Title       string             `bson:"title,omitempty" json:"title,omitempty"`
	FullTitle   string             `bson:"full_title,omitempty" json:"full_title,omitempty"`
	Year        *int               `bson:"year,omitempty" json:"year,omitempty"`
	PosterURL   string             `bson:"poster_url,omitempty" json:"poster_url,omitempty"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Genres      []string           `bson:"genres,omitempty" json:"genres,omitempty"`
	DurationMin *int               `bson:"duration_min,omitempty" json:"duration_min,omitempty"`
	Directors   []string           `bson:"directors,omitempty" json:"directors,omitempty"`
	Actors      []string           `bson:"actors,omitempty" json:"actors,omitempty"`
	Rating      *float64           `bson:"rating,omitempty" json:"rating,omitempty"`
	RatingCount *int               `bson:"rating_count,omitempty" json:"rating_count,omitempty"`

	// ScrapedAt is a unix timestamp. The crawl pipeline stamps it on
	// emission; the loader stamps records that arrive without one.
	ScrapedAt int64 `bson:"scraped_at,omitempty" json:"scraped_at,omitempty"`
}

// NewFilm creates a record seeded with only its source URL. The extractor
// fills in the rest when the film page response arrives.
func NewFilm(url string) *Film {
	return &Film{URL: url}
}

// SetYear records the release year.
func (f *Film) SetYear(y int) { f.Year = &y }

// SetDuration records the runtime in minutes.
func (f *Film) SetDuration(min int) { f.DurationMin = &min }

// SetRating records the aggregate rating value.
func (f *Film) SetRating(r float64) { f.Rating = &r }

// SetRatingCount records the number of ratings behind the aggregate.
func (f *Film) SetRatingCount(n int) { f.RatingCount = &n }

// Clone creates a deep copy of the record.
func (f *Film) Clone() *Film {
	clone := *f
	if f.Year != nil {
		y := *f.Year
		clone.Year = &y
	}
	if f.DurationMin != nil {
		d := *f.DurationMin
		clone.DurationMin = &d
	}
	if f.Rating != nil {
		r := *f.Rating
		clone.Rating = &r
	}
	if f.RatingCount != nil {
		n := *f.RatingCount
		clone.RatingCount = &n
	}
	clone.Genres = append([]string(nil), f.Genres...)
	clone.Directors = append([]string(nil), f.Directors...)
	clone.Actors = append([]string(nil), f.Actors...)
	return &clone
}

// ToJSON serializes the record to JSON bytes.
func (f *Film) ToJSON() ([]byte, error) {
	return json.Marshal(f)
}

// ToFlatMap returns a flat string map suitable for CSV export. List fields
// are joined with "; ", absent numerics become empty cells.
func (f *Film) ToFlatMap() map[string]string {
	flat := map[string]string{
		"url":         f.URL,
		"title":       f.Title,
		"full_title":  f.FullTitle,
		"poster_url":  f.PosterURL,
		"description": f.Description,
		"genres":      strings.Join(f.Genres, "; "),
		"directors":   strings.Join(f.Directors, "; "),
		"actors":      strings.Join(f.Actors, "; "),
	}
	flat["year"] = ""
	if f.Year != nil {
		flat["year"] = strconv.Itoa(*f.Year)
	}
	flat["duration_min"] = ""
	if f.DurationMin != nil {
		flat["duration_min"] = strconv.Itoa(*f.DurationMin)
	}
	flat["rating"] = ""
	if f.Rating != nil {
		flat["rating"] = strconv.FormatFloat(*f.Rating, 'f', -1, 64)
	}
	flat["rating_count"] = ""
	if f.RatingCount != nil {
		flat["rating_count"] = strconv.Itoa(*f.RatingCount)
	}
	return flat
}
