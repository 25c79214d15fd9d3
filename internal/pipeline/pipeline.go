// Package pipeline post-processes scraped films before they are emitted:
// whitespace cleanup, required-field enforcement, final-URL deduplication
// and timestamping.
package pipeline

import (
	"log/slog"

	"github.com/cinefinder/cinefinder/internal/types"
)

// Middleware processes a film and returns the (possibly modified) film.
// Return nil to drop the film from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a film. Return nil to drop it.
	Process(film *types.Film) (*types.Film, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates an empty Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// NewFilmPipeline creates the standard film pipeline: trim, require a URL,
// drop duplicates by final URL, stamp the scrape time.
func NewFilmPipeline(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&RequiredURLMiddleware{})
	p.Use(NewDedupMiddleware())
	p.Use(&TimestampMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the film through all middleware in order. A nil film with a
// nil error means the film was dropped.
func (p *Pipeline) Process(film *types.Film) (*types.Film, error) {
	current := film

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				URL:   film.URL,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("film dropped", "stage", mw.Name(), "url", film.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
