// Package metrics exposes process-wide Prometheus collectors for the observer
// API and the fetch workload. Run lifecycle metrics live in the progress
// sinks.
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
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	remoteCancelsTotal         prometheus.Counter
	fetchWaitSeconds           *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_fetch_pages_total",
				Help: "Pages fetched by the fetch workload, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_fetch_bytes_total",
				Help: "Bytes fetched by the fetch workload, labeled by site.",
			},
			[]string{"site"},
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

		remoteCancelsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "progress_remote_cancels_total",
				Help: "Cancellation requests received through the HTTP API.",
			},
		)

		fetchWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "progress_fetch_ratelimit_wait_seconds",
				Help:    "Time the fetch workload waited on the per-host rate limit, labeled by site.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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
	return promhttp.Handler()
}

// ObserveFetch records one fetched page. status is "ok" or "error".
func ObserveFetch(pageURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	fetchPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRemoteCancel counts a cancel request that arrived over HTTP.
func ObserveRemoteCancel() {
	Init()
	remoteCancelsTotal.Inc()
}

// ObserveFetchWait records a rate-limit pause before fetching from site.
func ObserveFetchWait(site string, d time.Duration) {
	Init()
	fetchWaitSeconds.WithLabelValues(site).Observe(d.Seconds())
}
