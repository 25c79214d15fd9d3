package fetcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cinefinder/cinefinder/internal/config"
)

// Throttle spaces outbound requests. With auto-throttle enabled the gap
// adapts to observed server latency, targeting a configured number of
// requests in flight per unit of latency; otherwise it stays fixed at the
// download delay.
type Throttle struct {
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	delay    time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	target   float64
	adaptive bool
}

// NewThrottle creates a Throttle from fetcher configuration.
func NewThrottle(cfg *config.FetcherConfig, logger *slog.Logger) *Throttle {
	minDelay := cfg.DownloadDelay
	delay := minDelay
	if cfg.AutoThrottle && cfg.StartDelay > delay {
		delay = cfg.StartDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	target := cfg.TargetConcurrency
	if target <= 0 {
		target = 1.0
	}

	return &Throttle{
		limiter:  rate.NewLimiter(limitFor(delay), 1),
		logger:   logger.With("component", "throttle"),
		delay:    delay,
		minDelay: minDelay,
		maxDelay: maxDelay,
		target:   target,
		adaptive: cfg.AutoThrottle,
	}
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

// Wait blocks until the next request may be sent, or until the context is
// canceled.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Observe feeds one response's latency back into the throttle. The gap
// moves halfway toward latency divided by the target concurrency. Slow
// servers widen it; error responses never narrow it.
func (t *Throttle) Observe(latency time.Duration, ok bool) {
	if !t.adaptive {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := (t.delay + time.Duration(float64(latency)/t.target)) / 2
	if !ok && next < t.delay {
		next = t.delay
	}
	if next < t.minDelay {
		next = t.minDelay
	}
	if next > t.maxDelay {
		next = t.maxDelay
	}
	if next == t.delay {
		return
	}

	t.logger.Debug("throttle adjusted", "delay", next, "latency", latency)
	t.delay = next
	t.limiter.SetLimit(limitFor(next))
}

// EnsureMinDelay raises the throttle floor, typically to honor a
// Crawl-delay directive from robots.txt.
func (t *Throttle) EnsureMinDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d <= t.minDelay {
		return
	}
	t.logger.Info("raising politeness floor", "delay", d)
	t.minDelay = d
	if t.maxDelay < d {
		t.maxDelay = d
	}
	if t.delay < d {
		t.delay = d
		t.limiter.SetLimit(limitFor(d))
	}
}

// Delay returns the current inter-request gap.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}
