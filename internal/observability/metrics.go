// Package observability exposes Prometheus metrics for crawl runs and the
// browse API.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes for the fetches_total counter.
const (
	FetchOK    = "ok"
	FetchError = "error"
	FetchRetry = "retry"
)

// Metrics bundles the collectors on a private registry, so parallel crawls
// and tests never trip duplicate registration. All observe methods are safe
// on a nil receiver; components treat metrics as optional.
type Metrics struct {
	registry *prometheus.Registry

	pagesCrawled   prometheus.Counter
	filmsScheduled prometheus.Counter
	filmsExtracted prometheus.Counter
	filmsStored    prometheus.Counter
	fetchesTotal   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	throttleDelay  prometheus.Gauge
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collector set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		pagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinefinder_pages_crawled_total",
			Help: "Listing pages processed.",
		}),
		filmsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinefinder_films_scheduled_total",
			Help: "Film fetches scheduled from listing pages.",
		}),
		filmsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinefinder_films_extracted_total",
			Help: "Films extracted and emitted by the crawl.",
		}),
		filmsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinefinder_films_stored_total",
			Help: "Films handed to the storage sink.",
		}),
		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefinder_fetches_total",
			Help: "Fetches by outcome.",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinefinder_fetch_duration_seconds",
			Help:    "Wall time of completed fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		throttleDelay: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cinefinder_throttle_delay_seconds",
			Help: "Current adaptive inter-request delay.",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cinefinder_http_request_duration_seconds",
			Help:    "Browse API request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

// PageCrawled counts one processed listing page.
func (m *Metrics) PageCrawled() {
	if m == nil {
		return
	}
	m.pagesCrawled.Inc()
}

// FilmsScheduled counts film fetches scheduled from one listing.
func (m *Metrics) FilmsScheduled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filmsScheduled.Add(float64(n))
}

// FilmExtracted counts one emitted film.
func (m *Metrics) FilmExtracted() {
	if m == nil {
		return
	}
	m.filmsExtracted.Inc()
}

// FilmsStored counts films handed to storage.
func (m *Metrics) FilmsStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filmsStored.Add(float64(n))
}

// FetchResult counts one fetch by outcome.
func (m *Metrics) FetchResult(outcome string) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records the wall time of a completed fetch.
func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

// SetThrottleDelay publishes the current politeness delay.
func (m *Metrics) SetThrottleDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleDelay.Set(d.Seconds())
}

// ObserveHTTP records one browse API request.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, fmt.Sprintf("%d", code)).Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusFunc supplies a progress snapshot for the side listener's /status
// endpoint. The crawler's Snapshot method satisfies it.
type StatusFunc func() map[string]any

// Serve runs a side listener for crawl runs, shutting down with the context.
// The browse API mounts Handler on its own router instead.
func (m *Metrics) Serve(ctx context.Context, port int, path string, status StatusFunc, logger *slog.Logger) {
	if m == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	if status != nil {
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			snap := status()
			snap["timestamp"] = time.Now().Format(time.RFC3339)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snap)
		})
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("metrics server starting", "addr", srv.Addr, "path", path)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
