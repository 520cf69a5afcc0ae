// Package metrics exposes the Prometheus registry used by the tap.
// Metrics are defined with promauto in the packages that record them
// (client, auth, ratelimit, cache, pagination, sink, tap); this package only
// serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where every tap metric is registered.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - zoomphone_requests_total{endpoint, status} (Counter): requests by path template and HTTP status ("cached" for cache hits)
//   - zoomphone_request_duration_seconds{endpoint} (Histogram)
//   - zoomphone_errors_total{class} (Counter): client, auth, rate_limit, server, network
//   - zoomphone_retries_total{error_class} (Counter)
//   - zoomphone_retry_backoff_seconds{error_class} (Histogram)
//   - zoomphone_retry_exhausted_total{error_class} (Counter)
//
// Auth Metrics (pkg/auth):
//   - zoomphone_token_requests_total{outcome} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - zoomphone_rate_limit_remaining (Gauge): X-RateLimit-Remaining of the last response
//   - zoomphone_rate_limit_waits_total{reason} (Counter): reset, throttle
//   - zoomphone_rate_limit_exhausted_total (Counter): requests refused because the reset is too far away
//
// Cache Metrics (pkg/cache):
//   - zoomphone_cache_hits_total{layer} (Counter)
//   - zoomphone_cache_misses_total (Counter)
//   - zoomphone_cache_stored_bytes_total{layer} (Counter)
//   - zoomphone_cache_errors_total{operation} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - zoomphone_pages_total{stream} (Counter)
//   - zoomphone_date_windows_completed_total{stream} (Counter)
//   - zoomphone_batch_fetches_total{outcome} (Counter): ok, error, canceled
//
// Sync Metrics (pkg/tap, pkg/sink):
//   - zoomphone_tap_records_total{stream} (Counter)
//   - zoomphone_tap_stream_duration_seconds{stream} (Histogram)
//   - zoomphone_tap_stream_errors_total{stream} (Counter)
//   - zoomphone_sink_records_written_total{sink, stream} (Counter)
//
// Example Prometheus Queries:
//
//   # Detail cache hit rate
//   sum(rate(zoomphone_cache_hits_total[5m])) /
//   (sum(rate(zoomphone_cache_hits_total[5m])) + sum(rate(zoomphone_cache_misses_total[5m])))
//
//   # Close to the rate limit
//   zoomphone_rate_limit_remaining < 10
//
//   # P95 request latency per endpoint
//   histogram_quantile(0.95, sum by (le, endpoint) (rate(zoomphone_request_duration_seconds_bucket[5m])))
