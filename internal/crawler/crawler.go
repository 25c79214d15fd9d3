// Package crawler runs the bounded, polite crawl: it dispatches listing
// and film fetches from a priority frontier, enforces page and item
// budgets, and streams extracted films to its consumer.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/extract"
	"github.com/cinefinder/cinefinder/internal/fetcher"
	"github.com/cinefinder/cinefinder/internal/listing"
	"github.com/cinefinder/cinefinder/internal/observability"
	"github.com/cinefinder/cinefinder/internal/pipeline"
	"github.com/cinefinder/cinefinder/internal/types"
)

// maxNextPages caps how many pagination candidates are considered per
// listing page.
const maxNextPages = 8

// Stats tracks operational counters for one crawl run.
type Stats struct {
	RequestsSent    atomic.Int64
	RequestsFailed  atomic.Int64
	ResponsesOK     atomic.Int64
	ResponsesError  atomic.Int64
	FilmsEmitted    atomic.Int64
	FilmsDropped    atomic.Int64
	URLsFiltered    atomic.Int64
	BytesDownloaded atomic.Int64
	ActiveWorkers   atomic.Int32
	StartTime       time.Time
}

// Snapshot returns a copy of the counters safe for logging.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"requests_sent":    s.RequestsSent.Load(),
		"requests_failed":  s.RequestsFailed.Load(),
		"responses_ok":     s.ResponsesOK.Load(),
		"responses_error":  s.ResponsesError.Load(),
		"films_emitted":    s.FilmsEmitted.Load(),
		"films_dropped":    s.FilmsDropped.Load(),
		"urls_filtered":    s.URLsFiltered.Load(),
		"bytes_downloaded": s.BytesDownloaded.Load(),
		"elapsed":          time.Since(s.StartTime).Round(time.Millisecond).String(),
	}
}

// Crawler orchestrates one crawl: seeds in, films out. Construct with New,
// attach a fetcher, then Start and range over Films.
type Crawler struct {
	cfg       *config.Config
	logger    *slog.Logger
	fetcher   fetcher.Fetcher
	throttle  *fetcher.Throttle
	robots    *fetcher.RobotsGate
	listings  *listing.Parser
	extractor *extract.Extractor
	pipe      *pipeline.Pipeline
	frontier  *Frontier
	state     *State
	stats     *Stats
	metrics   *observability.Metrics
	films     chan *types.Film

	rng   *rand.Rand
	rngMu sync.Mutex

	running     atomic.Bool
	cancel      context.CancelFunc
	stopOnce    sync.Once
	wg          sync.WaitGroup
	idleWorkers atomic.Int32
	monitorDone chan struct{}
}

// New creates a Crawler from configuration. A fetcher must be attached
// with SetFetcher before Start.
func New(cfg *config.Config, logger *slog.Logger) *Crawler {
	concurrency := cfg.Crawl.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Crawler{
		cfg:         cfg,
		logger:      logger.With("component", "crawler"),
		throttle:    fetcher.NewThrottle(&cfg.Fetcher, logger),
		robots:      fetcher.NewRobotsGate(cfg.Crawl.RespectRobots, cfg.Fetcher.UserAgent, logger),
		listings:    listing.NewParser(logger),
		extractor:   extract.NewExtractor(logger),
		pipe:        pipeline.NewFilmPipeline(logger),
		frontier:    NewFrontier(),
		state:       NewState(cfg.Crawl.MaxItems, cfg.Crawl.MaxPages),
		stats:       &Stats{},
		films:       make(chan *types.Film, concurrency*16),
		rng:         newRand(cfg.Crawl.RandomSeed),
		monitorDone: make(chan struct{}),
	}
}

// SetFetcher attaches the fetcher implementation.
func (c *Crawler) SetFetcher(f fetcher.Fetcher) {
	c.fetcher = f
}

// SetMetrics attaches Prometheus collectors. Optional; a nil Metrics is a
// no-op at every observe site.
func (c *Crawler) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Films returns the stream of scraped films. The channel closes when the
// crawl finishes.
func (c *Crawler) Films() <-chan *types.Film {
	return c.films
}

// Start seeds the frontier and launches the worker pool. It returns
// immediately; use Wait to block until the crawl drains.
func (c *Crawler) Start(ctx context.Context) error {
	if c.fetcher == nil {
		return fmt.Errorf("crawler: no fetcher attached")
	}
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("crawler: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stats.StartTime = time.Now()

	c.logger.Info("crawl starting",
		"seeds", len(c.cfg.Crawl.Seeds),
		"max_items", c.cfg.Crawl.MaxItems,
		"max_pages", c.cfg.Crawl.MaxPages,
		"shuffle", c.cfg.Crawl.Shuffle,
		"sample_rate", c.cfg.Crawl.SampleRate,
		"concurrency", c.cfg.Crawl.Concurrency,
	)

	seeds := append([]string(nil), c.cfg.Crawl.Seeds...)
	c.shuffle(seeds)
	for _, seed := range seeds {
		req, err := types.NewListingRequest(seed)
		if err != nil {
			c.logger.Warn("invalid seed", "url", seed, "error", err)
			continue
		}
		c.enqueue(req)
	}

	concurrency := c.cfg.Crawl.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		c.wg.Add(1)
		go c.worker(runCtx, i)
	}
	go c.idleMonitor(runCtx, concurrency)

	return nil
}

// Wait blocks until all workers are done, then closes the film stream and
// releases the fetcher.
func (c *Crawler) Wait() {
	c.wg.Wait()
	close(c.monitorDone)
	if c.cancel != nil {
		c.cancel()
	}
	close(c.films)

	if err := c.fetcher.Close(); err != nil {
		c.logger.Error("fetcher close error", "error", err)
	}
	c.logger.Info("crawl finished", "stats", c.Snapshot())
}

// Stop requests a graceful stop: no new work is accepted and in-flight
// fetches are canceled.
func (c *Crawler) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("stopping crawl")
		c.frontier.Close()
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Snapshot returns a point-in-time view of crawl progress.
func (c *Crawler) Snapshot() map[string]any {
	snap := c.stats.Snapshot()
	snap["pages_crawled"] = c.state.PagesCrawled()
	snap["films_scheduled"] = c.state.ItemsScheduled()
	snap["films_scraped"] = c.state.ItemsScraped()
	return snap
}

// worker is a single crawl worker goroutine.
func (c *Crawler) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker_id", id)

	for {
		c.idleWorkers.Add(1)
		req := c.frontier.Pop(ctx)
		c.idleWorkers.Add(-1)
		if req == nil {
			return
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return
		}

		c.stats.ActiveWorkers.Add(1)
		c.processRequest(ctx, logger, req)
		c.stats.ActiveWorkers.Add(-1)
	}
}

// idleMonitor closes the frontier once every worker has been idle over an
// empty queue for a few consecutive checks.
func (c *Crawler) idleMonitor(ctx context.Context, concurrency int) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	idleStreak := 0

	for {
		select {
		case <-ctx.Done():
			c.frontier.Close()
			return
		case <-c.monitorDone:
			return
		case <-ticker.C:
			if int(c.idleWorkers.Load()) >= concurrency && c.frontier.Len() == 0 {
				idleStreak++
				if idleStreak >= 3 {
					c.logger.Info("frontier empty, crawl complete")
					c.frontier.Close()
					return
				}
			} else {
				idleStreak = 0
			}
		}
	}
}

// processRequest handles one request: fetch, then route to the listing or
// film continuation.
func (c *Crawler) processRequest(ctx context.Context, logger *slog.Logger, req *types.Request) {
	logger = logger.With("url", req.URLString(), "kind", req.Kind)

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Fetcher.RequestTimeout)
	defer cancel()

	c.stats.RequestsSent.Add(1)
	resp, err := c.fetcher.Fetch(fetchCtx, req)
	if err != nil {
		c.handleFetchError(logger, req, err)
		return
	}

	c.throttle.Observe(resp.FetchDuration, resp.IsSuccess())
	c.stats.BytesDownloaded.Add(int64(len(resp.Body)))
	c.metrics.ObserveFetchDuration(resp.FetchDuration)
	c.metrics.SetThrottleDelay(c.throttle.Delay())

	if !resp.IsSuccess() {
		c.stats.ResponsesError.Add(1)
		c.metrics.FetchResult(observability.FetchError)
		logger.Debug("dropping non-success response", "status", resp.StatusCode)
		return
	}
	c.stats.ResponsesOK.Add(1)
	c.metrics.FetchResult(observability.FetchOK)

	switch req.Kind {
	case types.KindListing:
		c.handleListingPage(logger, resp)
	case types.KindFilm:
		c.handleFilmPage(ctx, logger, resp)
	default:
		logger.Warn("unknown request kind")
	}
}

// handleFetchError re-queues retryable failures and reports the rest.
func (c *Crawler) handleFetchError(logger *slog.Logger, req *types.Request, err error) {
	c.stats.RequestsFailed.Add(1)

	if c.frontier.IsClosed() && errors.Is(err, context.Canceled) {
		logger.Debug("fetch canceled during shutdown")
		return
	}

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) && fetchErr.IsRetryable() && req.RetryCount < req.MaxRetries {
		req.RetryCount++
		req.Priority = types.PriorityLow
		c.metrics.FetchResult(observability.FetchRetry)
		logger.Warn("retrying request",
			"retry", req.RetryCount,
			"max_retries", req.MaxRetries,
			"error", err,
		)
		if fetchErr.RetryAfter > 0 {
			logger.Info("rate limited, backing off", "retry_after", fetchErr.RetryAfter)
			time.Sleep(fetchErr.RetryAfter)
		} else if c.cfg.Fetcher.RetryDelay > 0 {
			time.Sleep(fetcher.RandomDelay(c.cfg.Fetcher.RetryDelay))
		}
		c.frontier.Push(req)
		return
	}

	c.stats.ResponsesError.Add(1)
	c.metrics.FetchResult(observability.FetchError)
	logger.Error("fetch failed permanently", "error", err, "retries", req.RetryCount)
}

// handleListingPage dedups, spends page budget, schedules film fetches and
// follows pagination.
func (c *Crawler) handleListingPage(logger *slog.Logger, resp *types.Response) {
	switch c.state.BeginListPage(resp.FinalURL) {
	case PageDuplicate:
		logger.Debug("listing already processed", "final_url", resp.FinalURL)
		return
	case PageBeyondBudget:
		logger.Info("page budget reached", "max_pages", c.cfg.Crawl.MaxPages)
		return
	}
	c.metrics.PageCrawled()

	filmURLs := c.listings.FilmLinks(resp)
	c.shuffle(filmURLs)
	filmURLs = samplePrefix(filmURLs, c.cfg.Crawl.SampleRate)

	scheduledNow := 0
	for _, u := range filmURLs {
		verdict := c.state.ScheduleFilm(u)
		if verdict == FilmBudgetExhausted {
			break
		}
		if verdict == FilmDuplicate {
			continue
		}

		req, err := types.NewFilmRequest(u)
		if err != nil {
			continue
		}
		req.ParentURL = resp.FinalURL
		c.enqueue(req)
		scheduledNow++
	}
	c.metrics.FilmsScheduled(scheduledNow)

	if len(filmURLs) == 0 {
		logger.Warn("no film links detected",
			"url", resp.FinalURL,
			"excerpt", htmlExcerpt(resp.Text(), 300),
		)
	} else {
		logger.Info("listing processed",
			"url", resp.FinalURL,
			"films", len(filmURLs),
			"scheduled_now", scheduledNow,
			"scheduled_total", c.state.ItemsScheduled(),
		)
	}

	if c.state.PageBudgetReached() {
		return
	}

	nextLinks := c.listings.NextLinks(resp)
	c.shuffle(nextLinks)
	if len(nextLinks) > maxNextPages {
		nextLinks = nextLinks[:maxNextPages]
	}
	for _, u := range nextLinks {
		if c.state.PageBudgetReached() {
			break
		}
		if c.state.SeenListPage(u) {
			continue
		}
		req, err := types.NewListingRequest(u)
		if err != nil {
			continue
		}
		req.ParentURL = resp.FinalURL
		c.enqueue(req)
	}
}

// handleFilmPage extracts one film, runs the pipeline, and emits the
// result. Reaching the item budget stops the crawl.
func (c *Crawler) handleFilmPage(ctx context.Context, logger *slog.Logger, resp *types.Response) {
	film := c.extractor.Extract(resp, resp.Request.Film)

	film, err := c.pipe.Process(film)
	if err != nil {
		c.stats.FilmsDropped.Add(1)
		logger.Warn("film rejected by pipeline", "error", err)
		return
	}
	if film == nil {
		c.stats.FilmsDropped.Add(1)
		logger.Debug("film dropped by pipeline")
		return
	}

	select {
	case c.films <- film:
	case <-ctx.Done():
		return
	}
	c.stats.FilmsEmitted.Add(1)
	c.metrics.FilmExtracted()

	if total, reached := c.state.RecordItem(); reached {
		logger.Info("item budget reached", "items", total, "max_items", c.cfg.Crawl.MaxItems)
		c.Stop()
	}
}

// enqueue runs admission checks and pushes a request onto the frontier.
func (c *Crawler) enqueue(req *types.Request) bool {
	urlStr := req.URLString()

	if !c.domainAllowed(req.Domain()) {
		c.stats.URLsFiltered.Add(1)
		c.logger.Debug("offsite request filtered", "url", urlStr)
		return false
	}
	if !c.robots.Allowed(urlStr) {
		c.stats.URLsFiltered.Add(1)
		c.logger.Debug("blocked by robots.txt", "url", urlStr)
		return false
	}
	if delay := c.robots.CrawlDelay(urlStr); delay > 0 {
		c.throttle.EnsureMinDelay(delay)
	}

	c.frontier.Push(req)
	return true
}

// domainAllowed implements the offsite policy: a host passes when it
// matches an allowed domain or one of its subdomains.
func (c *Crawler) domainAllowed(host string) bool {
	if len(c.cfg.Crawl.AllowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range c.cfg.Crawl.AllowedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// shuffle permutes a slice in place when shuffling is enabled.
func (c *Crawler) shuffle(list []string) {
	if !c.cfg.Crawl.Shuffle || len(list) < 2 {
		return
	}
	c.rngMu.Lock()
	c.rng.Shuffle(len(list), func(i, j int) {
		list[i], list[j] = list[j], list[i]
	})
	c.rngMu.Unlock()
}

// samplePrefix keeps a leading fraction of the candidates. Rates at or
// above 1, or at or below 0, keep everything; a non-empty input always
// keeps at least one entry.
func samplePrefix(urls []string, rate float64) []string {
	if rate <= 0 || rate >= 1 || len(urls) == 0 {
		return urls
	}
	k := int(float64(len(urls)) * rate)
	if k < 1 {
		k = 1
	}
	return urls[:k]
}

// newRand builds the crawl's random source. A numeric seed is used as is,
// any other non-empty string is hashed, and an empty seed falls back to
// the clock.
func newRand(seed string) *rand.Rand {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
		return rand.New(rand.NewSource(n))
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// htmlExcerpt flattens and truncates a page body for log output.
func htmlExcerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		s = s[:n]
	}
	return s
}
