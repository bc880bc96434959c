// Package collyfetcher implements the plain HTML fetcher using gocolly.
//
// Every fetch passes through a shared weighted semaphore, sleeps a small random
// jitter before each attempt, and retries non-200 responses and transport errors
// up to a fixed attempt count. Failures are logged here; callers only see
// ErrUnavailable and skip the URL.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/metrics"
)

// ErrUnavailable is returned once every attempt for a URL has failed.
var ErrUnavailable = errors.New("page unavailable")

// Defaults applied when Config leaves a field unset.
const (
	DefaultConcurrency = 20
	DefaultMaxAttempts = 3
	DefaultJitterMin   = 10 * time.Millisecond
	DefaultJitterMax   = 20 * time.Millisecond
	DefaultTimeout     = 10 * time.Second
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int64
	MaxAttempts int
	JitterMin   time.Duration
	JitterMax   time.Duration
}

// Waiter paces requests per host. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithLimiter applies a per-host rate limiter before every attempt.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) {
		f.limiter = w
	}
}

// WithTransport overrides the HTTP transport used by the collector.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.transport = rt
		}
	}
}

// Fetcher implements menu.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	sem           *semaphore.Weighted
	limiter       Waiter
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}

	// Retries revisit the same URL, and clones share the visited store.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())

	f := &Fetcher{
		cfg:           cfg,
		transport:     newHTTPTransport(),
		baseCollector: c,
		sem:           semaphore.NewWeighted(cfg.Concurrency),
		logger:        zap.NewNop(),
		sleep:         sleepWithContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	c.WithTransport(f.transport)
	// The backend client is shared by every clone.
	c.SetRequestTimeout(cfg.Timeout)
	return f
}

// Fetch retrieves url, retrying up to MaxAttempts times.
func (f *Fetcher) Fetch(ctx context.Context, url string) (menu.FetchResult, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return menu.FetchResult{URL: url}, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer f.sem.Release(1)

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := f.sleep(ctx, f.jitter()); err != nil {
			return menu.FetchResult{URL: url, Attempts: attempt - 1}, err
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return menu.FetchResult{URL: url, Attempts: attempt - 1}, fmt.Errorf("wait for %s: %w", url, err)
			}
		}

		result, err := f.attempt(ctx, url)
		if err == nil {
			result.Attempts = attempt
			result.Duration = time.Since(start)
			metrics.ObserveFetchAttempt("ok")
			metrics.ObserveFetch(url, "ok", len(result.Body))
			return result, nil
		}
		if ctx.Err() != nil {
			return menu.FetchResult{URL: url, Attempts: attempt}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		lastErr = err
		metrics.ObserveFetchAttempt("retry")
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.cfg.MaxAttempts),
			zap.Error(err),
		)
	}

	metrics.ObserveFetchAttempt("exhausted")
	metrics.ObserveFetch(url, "unavailable", 0)
	f.logger.Error("giving up on url",
		zap.String("url", url),
		zap.Int("attempts", f.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return menu.FetchResult{URL: url, Attempts: f.cfg.MaxAttempts, Duration: time.Since(start)},
		fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, url, f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) (menu.FetchResult, error) {
	var (
		result   menu.FetchResult
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return menu.FetchResult{}, err
	}
	if result.StatusCode != http.StatusOK {
		return menu.FetchResult{}, fmt.Errorf("unexpected status %d", result.StatusCode)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(result *menu.FetchResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *menu.FetchResult, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = menu.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) jitter() time.Duration {
	lo, hi := f.cfg.JitterMin, f.cfg.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("jitter sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   DefaultConcurrency,
		IdleConnTimeout:       90 * time.Second,
	}
}
