package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/cinefinder/cinefinder/internal/config"
	"github.com/cinefinder/cinefinder/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestFetcher(t *testing.T, mutate func(*config.Config)) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	f, err := NewHTTPFetcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func fetchURL(t *testing.T, f *HTTPFetcher, rawURL string) (*types.Response, error) {
	t.Helper()
	req, err := types.NewListingRequest(rawURL)
	if err != nil {
		t.Fatalf("NewListingRequest: %v", err)
	}
	return f.Fetch(context.Background(), req)
}

// --- HTTP Fetcher Tests ---

func TestFetchSendsBrowserIdentity(t *testing.T) {
	var gotUA, gotLang, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("status = %d, want success", resp.StatusCode)
	}
	if !strings.Contains(gotUA, "Chrome") {
		t.Errorf("User-Agent = %q, want a browser identity", gotUA)
	}
	if !strings.HasPrefix(gotLang, "fr-FR") {
		t.Errorf("Accept-Language = %q, want French first", gotLang)
	}
	if !strings.Contains(gotEncoding, "br") {
		t.Errorf("Accept-Encoding = %q, want brotli offered", gotEncoding)
	}
}

func TestFetchDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("<html><body>compressed</body></html>"))
		gz.Close()
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(resp.Text(), "compressed") {
		t.Errorf("body = %q, want decompressed html", resp.Text())
	}
}

func TestFetchDecompressesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte("<html><body>petit film</body></html>"))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(resp.Text(), "petit film") {
		t.Errorf("body = %q, want decompressed html", resp.Text())
	}
}

func TestFetchNormalizesCharset(t *testing.T) {
	latin1 := []byte("<html><body>caf\xe9 cin\xe9ma</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(latin1)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(resp.Text(), "café cinéma") {
		t.Errorf("body = %q, want UTF-8 normalized text", resp.Text())
	}
}

func TestFetchNotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if !resp.IsClientError() {
		t.Error("expected client error classification")
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	_, err := fetchURL(t, f, srv.URL)
	if err == nil {
		t.Fatal("expected an error for 429")
	}

	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *types.FetchError", err)
	}
	if !fetchErr.Retryable {
		t.Error("429 should be retryable")
	}
	if fetchErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", fetchErr.RetryAfter)
	}
	if fetchErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", fetchErr.StatusCode)
	}
}

func TestFetchServerErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	_, err := fetchURL(t, f, srv.URL)

	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *types.FetchError", err)
	}
	if !fetchErr.Retryable {
		t.Error("503 should be retryable")
	}
}

func TestFetchKeepsSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			w.Write([]byte("sid=" + c.Value))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123"})
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	if _, err := fetchURL(t, f, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if resp.Text() != "sid=abc123" {
		t.Errorf("body = %q, want echoed session cookie", resp.Text())
	}
}

func TestFetchCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write(bytes.Repeat([]byte("a"), 1000))
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(cfg *config.Config) {
		cfg.Fetcher.MaxBodySize = 64
	})
	resp, err := fetchURL(t, f, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(resp.Body) != 64 {
		t.Errorf("body length = %d, want capped at 64", len(resp.Body))
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 5 * time.Second},
		{"30", 30 * time.Second},
		{"500", 120 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	if got < 25*time.Second || got > 35*time.Second {
		t.Errorf("parseRetryAfter(http-date) = %s, want ~30s", got)
	}
}

func TestRandomDelayRange(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := RandomDelay(base)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("RandomDelay(%s) = %s, outside ±25%%", base, d)
		}
	}
}

// --- Throttle Tests ---

func throttleConfig() *config.FetcherConfig {
	cfg := config.DefaultConfig()
	cfg.Fetcher.DownloadDelay = time.Second
	cfg.Fetcher.AutoThrottle = true
	cfg.Fetcher.StartDelay = time.Second
	cfg.Fetcher.MaxDelay = 10 * time.Second
	cfg.Fetcher.TargetConcurrency = 1.0
	return &cfg.Fetcher
}

func TestThrottleWidensOnSlowResponses(t *testing.T) {
	th := NewThrottle(throttleConfig(), testLogger())
	if th.Delay() != time.Second {
		t.Fatalf("initial delay = %s, want 1s", th.Delay())
	}

	th.Observe(5*time.Second, true)
	if th.Delay() != 3*time.Second {
		t.Errorf("delay after 5s latency = %s, want 3s", th.Delay())
	}

	// Converges toward the max but never beyond it.
	for i := 0; i < 20; i++ {
		th.Observe(time.Minute, true)
	}
	if th.Delay() != 10*time.Second {
		t.Errorf("delay = %s, want clamped at 10s", th.Delay())
	}
}

func TestThrottleNeverDropsBelowFloor(t *testing.T) {
	th := NewThrottle(throttleConfig(), testLogger())
	for i := 0; i < 20; i++ {
		th.Observe(time.Millisecond, true)
	}
	if th.Delay() != time.Second {
		t.Errorf("delay = %s, want floor of 1s", th.Delay())
	}
}

func TestThrottleErrorsNeverNarrow(t *testing.T) {
	th := NewThrottle(throttleConfig(), testLogger())
	th.Observe(9*time.Second, true)
	widened := th.Delay()

	th.Observe(time.Millisecond, false)
	if th.Delay() != widened {
		t.Errorf("delay = %s after failed response, want unchanged %s", th.Delay(), widened)
	}
}

func TestThrottleFixedWhenDisabled(t *testing.T) {
	cfg := throttleConfig()
	cfg.AutoThrottle = false
	th := NewThrottle(cfg, testLogger())

	th.Observe(time.Minute, true)
	if th.Delay() != time.Second {
		t.Errorf("delay = %s, want fixed 1s", th.Delay())
	}
}

func TestThrottleEnsureMinDelay(t *testing.T) {
	th := NewThrottle(throttleConfig(), testLogger())
	th.EnsureMinDelay(4 * time.Second)
	if th.Delay() != 4*time.Second {
		t.Errorf("delay = %s, want raised to 4s", th.Delay())
	}

	for i := 0; i < 20; i++ {
		th.Observe(time.Millisecond, true)
	}
	if th.Delay() != 4*time.Second {
		t.Errorf("delay = %s, want new floor of 4s", th.Delay())
	}
}

// --- Robots Gate Tests ---

func TestRobotsGateDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("User-agent: *\nDisallow: /private/\nCrawl-delay: 2\n"))
	}))
	defer srv.Close()

	gate := NewRobotsGate(true, "Mozilla/5.0", testLogger())
	if gate.Allowed(srv.URL + "/private/page") {
		t.Error("expected /private/ to be disallowed")
	}
	if !gate.Allowed(srv.URL + "/film/alpha/1") {
		t.Error("expected /film/ to be allowed")
	}
	if got := gate.CrawlDelay(srv.URL + "/film/alpha/1"); got != 2*time.Second {
		t.Errorf("CrawlDelay = %s, want 2s", got)
	}
}

func TestRobotsGateMissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gate := NewRobotsGate(true, "Mozilla/5.0", testLogger())
	if !gate.Allowed(srv.URL + "/anything") {
		t.Error("missing robots.txt should allow")
	}
}

func TestRobotsGateDisabled(t *testing.T) {
	fetched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
	}))
	defer srv.Close()

	gate := NewRobotsGate(false, "Mozilla/5.0", testLogger())
	if !gate.Allowed(srv.URL + "/private/page") {
		t.Error("disabled gate should allow everything")
	}
	if fetched {
		t.Error("disabled gate should not fetch robots.txt")
	}
}

func TestRobotsGateCachesPerOrigin(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits++
			w.Write([]byte("User-agent: *\nDisallow:\n"))
		}
	}))
	defer srv.Close()

	gate := NewRobotsGate(true, "Mozilla/5.0", testLogger())
	for i := 0; i < 5; i++ {
		gate.Allowed(srv.URL + "/page")
	}
	if hits != 1 {
		t.Errorf("robots.txt fetched %d times, want once", hits)
	}
}
