// Package metrics exposes Prometheus collectors for the crawl, ingest, and
// translation stages.
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
	pagesFetchedTotal          *prometheus.CounterVec
	bytesFetchedTotal          *prometheus.CounterVec
	pagesClassifiedTotal       *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	categoriesInsertedTotal    prometheus.Counter
	productsUpsertedTotal      *prometheus.CounterVec
	translationsTotal          *prometheus.CounterVec
	pagesArchivedTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once, and every
// Observe function calls it.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_pages_fetched_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		bytesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_bytes_fetched_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		pagesClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_pages_classified_total",
				Help: "Total number of pages classified during discovery, labeled by kind.",
			},
			[]string{"kind"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		categoriesInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shufersal_categories_inserted_total",
				Help: "Total number of category rows inserted.",
			},
		)

		productsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_products_upserted_total",
				Help: "Total number of products handled by the scraper, labeled by result.",
			},
			[]string{"result"},
		)

		translationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_translations_total",
				Help: "Total number of backfill rows, labeled by table and result.",
			},
			[]string{"table", "result"},
		)

		pagesArchivedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shufersal_pages_archived_total",
				Help: "Total number of raw pages written to the archive, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shufersal_rate_limit_delays_seconds",
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

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveFetch records one fetch attempt outcome. status is the HTTP status
// code, or "error" for transport failures.
func ObserveFetch(site, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pagesFetchedTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		bytesFetchedTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObservePageKind counts a classified page.
func ObservePageKind(kind string) {
	Init()
	pagesClassifiedTotal.WithLabelValues(kind).Inc()
}

// ObserveRetry counts a fetch retry.
func ObserveRetry(site string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveCategoryInserted counts a new category row.
func ObserveCategoryInserted() {
	Init()
	categoriesInsertedTotal.Inc()
}

// ObserveProduct counts a product by result: created, updated, or skipped.
func ObserveProduct(result string) {
	Init()
	productsUpsertedTotal.WithLabelValues(result).Inc()
}

// ObserveTranslation counts a backfill row by result.
func ObserveTranslation(table, result string) {
	Init()
	translationsTotal.WithLabelValues(table, result).Inc()
}

// ObserveArchive counts an archive write by result: stored or failed.
func ObserveArchive(result string) {
	Init()
	pagesArchivedTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
