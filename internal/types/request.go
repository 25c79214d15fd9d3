package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Priority levels for request scheduling (lower = higher priority).
const (
	PriorityHigh   = 0
	PriorityNormal = 1
	PriorityLow    = 2
)

// Request kinds. Film fetches and listing fetches resume different parse
// continuations when their responses arrive.
const (
	KindListing = "listing"
	KindFilm    = "film"
)

// Request represents one outbound fetch queued by the crawler.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are extra HTTP headers for this request only.
	Headers http.Header

	// Kind is KindListing or KindFilm and selects the parse continuation.
	Kind string

	// Priority controls scheduling order.
	Priority int

	// MaxRetries caps retry attempts for transient failures.
	MaxRetries int

	// RetryCount tracks the current retry attempt.
	RetryCount int

	// Film carries the url-seeded record for film fetches; nil for listings.
	Film *Film

	// ParentURL is the listing page this request was discovered on.
	ParentURL string

	// CreatedAt is when this request was queued.
	CreatedAt time.Time
}

// NewRequest creates a GET request with defaults.
func NewRequest(rawURL, kind string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:        u,
		Method:     http.MethodGet,
		Headers:    make(http.Header),
		Kind:       kind,
		Priority:   PriorityNormal,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}, nil
}

// NewListingRequest creates a listing-page request.
func NewListingRequest(rawURL string) (*Request, error) {
	return NewRequest(rawURL, KindListing)
}

// NewFilmRequest creates a film-page request carrying its seeded record.
// Film fetches are scheduled ahead of further pagination so that an
// exhausted item budget is reached before more listings are discovered.
func NewFilmRequest(rawURL string) (*Request, error) {
	req, err := NewRequest(rawURL, KindFilm)
	if err != nil {
		return nil, err
	}
	req.Priority = PriorityHigh
	req.Film = NewFilm(rawURL)
	return req, nil
}

// URLString returns the string form of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	if r.Film != nil {
		clone.Film = r.Film.Clone()
	}
	return &clone
}
