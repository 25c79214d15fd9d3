package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// --- Metrics Tests ---

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.PageCrawled()
	m.PageCrawled()
	m.FilmsScheduled(5)
	m.FilmExtracted()
	m.FilmsStored(3)
	m.FetchResult(FetchOK)
	m.FetchResult(FetchRetry)
	m.ObserveFetchDuration(120 * time.Millisecond)
	m.SetThrottleDelay(1500 * time.Millisecond)
	m.ObserveHTTP("/api/films", "GET", 200, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	expectations := []string{
		"cinefinder_pages_crawled_total 2",
		"cinefinder_films_scheduled_total 5",
		"cinefinder_films_extracted_total 1",
		"cinefinder_films_stored_total 3",
		`cinefinder_fetches_total{outcome="ok"} 1`,
		`cinefinder_fetches_total{outcome="retry"} 1`,
		"cinefinder_throttle_delay_seconds 1.5",
		`route="/api/films"`,
	}
	for _, want := range expectations {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.PageCrawled()
	m.FilmsScheduled(3)
	m.FilmExtracted()
	m.FilmsStored(1)
	m.FetchResult(FetchError)
	m.ObserveFetchDuration(time.Second)
	m.SetThrottleDelay(time.Second)
	m.ObserveHTTP("/", "GET", 200, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("nil metrics handler status = %d, want 404", resp.StatusCode)
	}
}

func TestServeExposesStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMetrics()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m.Serve(ctx, port, "/metrics", func() map[string]any {
		return map[string]any{"pages_crawled": 3}
	}, logger)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(base + "/status")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("status endpoint never came up: %v", err)
	}
	defer resp.Body.Close()

	var snap map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap["pages_crawled"] != float64(3) {
		t.Errorf("pages_crawled = %v, want 3", snap["pages_crawled"])
	}
	if snap["timestamp"] == nil {
		t.Error("status missing timestamp")
	}

	if metricsResp, err := http.Get(base + "/metrics"); err == nil {
		metricsResp.Body.Close()
		if metricsResp.StatusCode != 200 {
			t.Errorf("metrics endpoint status = %d", metricsResp.StatusCode)
		}
	}
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.PageCrawled()

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if strings.Contains(string(body), "cinefinder_pages_crawled_total 1") {
		t.Error("registries should not share state")
	}
}
