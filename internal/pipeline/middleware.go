package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/cinefinder/cinefinder/internal/types"
)

// TrimMiddleware trims whitespace from all string fields and drops empty
// entries from list fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(film *types.Film) (*types.Film, error) {
	film.URL = strings.TrimSpace(film.URL)
	film.Title = strings.TrimSpace(film.Title)
	film.FullTitle = strings.TrimSpace(film.FullTitle)
	film.PosterURL = strings.TrimSpace(film.PosterURL)
	film.Description = strings.TrimSpace(film.Description)
	film.Genres = trimList(film.Genres)
	film.Directors = trimList(film.Directors)
	film.Actors = trimList(film.Actors)
	return film, nil
}

func trimList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RequiredURLMiddleware drops films without a URL. Everything downstream
// keys on it.
type RequiredURLMiddleware struct{}

func (m *RequiredURLMiddleware) Name() string { return "required_url" }

func (m *RequiredURLMiddleware) Process(film *types.Film) (*types.Film, error) {
	if film.URL == "" {
		return nil, nil
	}
	return film, nil
}

// DedupMiddleware drops films whose final URL was already emitted. The
// scheduler dedups scheduled URLs, but redirects can land two of them on
// the same page.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(film *types.Film) (*types.Film, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[film.URL]; exists {
		return nil, nil
	}
	m.seen[film.URL] = struct{}{}
	return film, nil
}

// TimestampMiddleware stamps the scrape time on films that do not carry
// one yet.
type TimestampMiddleware struct{}

func (m *TimestampMiddleware) Name() string { return "timestamp" }

func (m *TimestampMiddleware) Process(film *types.Film) (*types.Film, error) {
	if film.ScrapedAt == 0 {
		film.ScrapedAt = time.Now().Unix()
	}
	return film, nil
}
