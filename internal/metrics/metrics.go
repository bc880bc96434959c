// Package metrics exposes Prometheus collectors for the menu crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerFetchAttemptsTotal     *prometheus.CounterVec
	crawlerRenderScrolls          prometheus.Histogram
	crawlerRenderDurationSeconds  prometheus.Histogram
	crawlerItemsTotal             *prometheus.CounterVec
	crawlerRestaurantsTotal       *prometheus.CounterVec
	crawlerRowsUpsertedTotal      *prometheus.CounterVec
	crawlerRunsTotal              *prometheus.CounterVec
	crawlerRunDurationSeconds     prometheus.Histogram
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Individual fetch attempts, labeled by result (ok, retry, exhausted).",
			},
			[]string{"result"},
		)

		crawlerRenderScrolls = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_render_scrolls",
				Help:    "Height-changing scrolls performed per rendered listing page.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20},
			},
		)

		crawlerRenderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_render_duration_seconds",
				Help:    "Wall time spent rendering one listing page.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Catalog items, labeled by collection and result (parsed, dropped, persisted).",
			},
			[]string{"collection", "result"},
		)

		crawlerRestaurantsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_restaurants_total",
				Help: "Restaurants processed by the orchestrator, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerRowsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_rows_upserted_total",
				Help: "Rows written by upsert statements, labeled by table.",
			},
			[]string{"table"},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Completed ingestion runs, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Wall time of a full ingestion run.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records the final outcome of a fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFetchAttempt counts a single try of a fetch.
func ObserveFetchAttempt(result string) {
	Init()
	crawlerFetchAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveRender records scroll depth and latency for one rendered page.
func ObserveRender(scrolls int, duration time.Duration) {
	Init()
	crawlerRenderScrolls.Observe(float64(scrolls))
	crawlerRenderDurationSeconds.Observe(duration.Seconds())
}

// ObserveItems adds n catalog items for the collection and result.
func ObserveItems(collection, result string, n int) {
	Init()
	if n <= 0 {
		return
	}
	crawlerItemsTotal.WithLabelValues(collection, result).Add(float64(n))
}

// ObserveRestaurant counts a restaurant outcome.
func ObserveRestaurant(result string) {
	Init()
	crawlerRestaurantsTotal.WithLabelValues(result).Inc()
}

// ObserveUpsert adds rows written to table.
func ObserveUpsert(table string, rows int) {
	Init()
	if rows <= 0 {
		return
	}
	crawlerRowsUpsertedTotal.WithLabelValues(table).Add(float64(rows))
}

// ObserveRun records a finished ingestion run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	crawlerRunsTotal.WithLabelValues(status).Inc()
	crawlerRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
