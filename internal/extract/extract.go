// Package extract turns raw film-page HTML into structured film records.
// The primary source is the page's embedded JSON-LD; OpenGraph tags and the
// document title serve as fallbacks. Extraction never fails: each field is
// populated best-effort and parse problems degrade that one field to absent.
package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cinefinder/cinefinder/internal/types"
)

// Extractor produces one Film per film-page response.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a film page extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With("component", "extractor"),
	}
}

// Extract populates the url-seeded record from the response body. It always
// returns a record; on a page with no recognizable structured data the
// record keeps its URL and whatever the fallbacks supply.
func (e *Extractor) Extract(resp *types.Response, seed *types.Film) *types.Film {
	film := seed
	if film == nil {
		film = types.NewFilm(resp.FinalURL)
	}
	if resp.FinalURL != "" {
		film.URL = resp.FinalURL
	}

	doc, err := resp.Document()
	if err != nil {
		e.logger.Debug("unparseable HTML", "url", film.URL, "error", err)
		return film
	}

	if movie := e.findMovieObject(doc); movie != nil {
		e.applyMovie(film, movie)
	} else {
		e.logger.Debug("no structured movie object", "url", film.URL)
	}

	e.applyFallbacks(film, doc)
	return film
}

// findMovieObject scans JSON-LD script blocks in document order and stops
// at the first movie-typed object.
func (e *Extractor) findMovieObject(doc *goquery.Document) map[string]any {
	var movie map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}

		movie = findMovie(data)
		return movie == nil
	})

	return movie
}

// applyMovie maps the structured movie object onto the record. Every field
// is optional and coerced defensively.
func (e *Extractor) applyMovie(film *types.Film, movie map[string]any) {
	if name := toString(movie["name"]); strings.TrimSpace(name) != "" {
		title, year, hasYear := CleanTitle(name)
		film.Title = title
		film.FullTitle = strings.TrimSpace(name)
		if hasYear {
			film.SetYear(year)
		}
	}

	// The release date is authoritative over a year guessed from the title.
	if date, ok := movie["datePublished"].(string); ok {
		if y, ok := YearFromDate(date); ok {
			film.SetYear(y)
		}
	}

	img := movie["image"]
	if m, ok := img.(map[string]any); ok {
		img = m["url"]
	}
	if l, ok := img.([]any); ok && len(l) > 0 {
		img = l[0]
	}
	film.PosterURL = strings.TrimSpace(toString(img))

	film.Description = toString(movie["description"])
	film.Genres = stringList(movie["genre"])

	if min, ok := ISODurationMinutes(toString(movie["duration"])); ok {
		film.SetDuration(min)
	}

	film.Directors = nameList(movie["director"])
	film.Actors = nameList(movie["actor"])

	if rating, ok := movie["aggregateRating"].(map[string]any); ok {
		if rv, ok := toFloat(rating["ratingValue"]); ok {
			film.SetRating(rv)
		}
		if rc, ok := toInt(rating["ratingCount"]); ok {
			film.SetRatingCount(rc)
		}
	}
}

// applyFallbacks fills a missing title or year from og:title and the
// document title, and a missing poster from og:image. The first source that
// supplies a missing field wins, independently per field.
func (e *Extractor) applyFallbacks(film *types.Film, doc *goquery.Document) {
	if film.Title == "" || film.Year == nil {
		ogTitle, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
		pageTitle := doc.Find("title").First().Text()

		for _, txt := range []string{ogTitle, pageTitle} {
			if txt == "" {
				continue
			}
			title, year, hasYear := CleanTitle(txt)
			if film.Title == "" && title != "" {
				film.Title = title
			}
			if film.Year == nil && hasYear {
				film.SetYear(year)
			}
		}
	}

	if film.PosterURL == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
			film.PosterURL = og
		}
	}
}
