package fetcher

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGate enforces robots.txt. Rules are fetched once per origin and
// cached for the lifetime of the crawl.
type RobotsGate struct {
	enabled   bool
	userAgent string
	client    *http.Client
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.Group
}

// NewRobotsGate creates a robots.txt gate for the given crawler identity.
func NewRobotsGate(enabled bool, userAgent string, logger *slog.Logger) *RobotsGate {
	return &RobotsGate{
		enabled:   enabled,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With("component", "robots"),
		cache:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the URL may be fetched. An unreachable or
// unparseable robots.txt means allow.
func (g *RobotsGate) Allowed(rawURL string) bool {
	if !g.enabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	group := g.group(u.Scheme + "://" + u.Host)
	if group == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay the URL's origin requests for this
// crawler, or zero when none is specified.
func (g *RobotsGate) CrawlDelay(rawURL string) time.Duration {
	if !g.enabled {
		return 0
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	group := g.group(u.Scheme + "://" + u.Host)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// group returns the cached rule group for an origin, fetching it on first
// use. A nil group means no usable robots.txt; failures are cached so an
// unreachable origin is not hammered once per request.
func (g *RobotsGate) group(origin string) *robotstxt.Group {
	g.mu.RLock()
	group, ok := g.cache[origin]
	g.mu.RUnlock()
	if ok {
		return group
	}

	group = g.fetch(origin)

	g.mu.Lock()
	g.cache[origin] = group
	g.mu.Unlock()
	return group
}

func (g *RobotsGate) fetch(origin string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"

	resp, err := g.client.Get(robotsURL)
	if err != nil {
		g.logger.Debug("robots.txt unreachable", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.logger.Debug("robots.txt unusable", "url", robotsURL, "status", resp.StatusCode, "error", err)
		return nil
	}

	g.logger.Debug("robots.txt loaded", "url", robotsURL, "status", resp.StatusCode)
	return data.FindGroup(g.userAgent)
}
