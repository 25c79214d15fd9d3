package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/store"
)

func (s *Server) handleFilms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FilmFilter{
		Title:     strings.TrimSpace(q.Get("title")),
		Director:  strings.TrimSpace(q.Get("director")),
		Genre:     normalizeGenre(q.Get("genre")),
		MinRating: parseRatingMin(q.Get("rating_min")),
		Sort:      strings.TrimSpace(q.Get("sort")),
		Limit:     parseLimit(q.Get("limit")),
	}

	films, err := s.catalog.Find(r.Context(), filter)
	if err != nil {
		s.logger.Error("film query failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if filter.Genre != "" {
		for _, film := range films {
			film.Genres = reorderGenres(film.Genres, filter.Genre)
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"count": len(films),
		"films": films,
	})
}

func (s *Server) handleFilmDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	film, err := s.catalog.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "film not found")
		return
	}
	if err != nil {
		s.logger.Error("film lookup failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	s.jsonResponse(w, http.StatusOK, film)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.catalog.Genres(r.Context())
	if err != nil {
		s.logger.Error("genre query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"genres": genres})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats aggregation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "aggregation failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.catalog.Ping(ctx); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"mongo":  "unreachable",
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// normalizeGenre maps the catch-all filter values to "no filter".
func normalizeGenre(raw string) string {
	g := strings.TrimSpace(raw)
	switch strings.ToLower(g) {
	case "", "toutes", "tous", "all":
		return ""
	}
	return g
}

// parseRatingMin accepts a decimal comma. Anything unparseable means no
// rating filter.
func parseRatingMin(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseLimit(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// reorderGenres moves the selected genre to the front for display.
func reorderGenres(genres []string, selected string) []string {
	found := false
	for _, g := range genres {
		if g == selected {
			found = true
			break
		}
	}
	if !found {
		return genres
	}

	out := make([]string, 0, len(genres))
	out = append(out, selected)
	for _, g := range genres {
		if g != selected {
			out = append(out, g)
		}
	}
	return out
}
