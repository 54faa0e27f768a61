// Package metrics documents the ingester's Prometheus metrics and pushes them
// at the end of batch runs. All metrics are defined in their respective
// packages (client, auth, credly, partition, state, ingest) to maintain
// modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by the ingester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is what Push sends. It is the default gatherer unless replaced in tests.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Push sends every gathered metric to a Prometheus Pushgateway under job.
// An empty url disables pushing.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - credly_http_requests_total{method, status} (Counter): HTTP attempts by method and status
//   - credly_http_request_duration_seconds{method} (Histogram): Attempt duration by method
//   - credly_http_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - credly_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - credly_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - credly_http_retry_exhausted_total{error_class} (Counter): Requests that used every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - credly_rate_limit_remaining (Gauge): Last X-RateLimit-Remaining seen
//   - credly_rate_limit_wait_seconds (Histogram): Time spent pacing before a request
//
// API Metrics (pkg/credly, pkg/auth):
//   - credly_api_requests_total{resource} (Counter): Page fetches by resource
//   - credly_auth_token_refreshes_total{kind} (Counter): Credential loads by provider kind
//
// Storage Metrics (pkg/partition, pkg/state):
//   - credly_partition_objects_written_total{dataset} (Counter)
//   - credly_partition_bytes_written_total{dataset} (Counter)
//   - credly_partition_objects_deleted_total{dataset} (Counter)
//   - credly_partition_clear_failures_total{dataset} (Counter): Non-fatal clear failures
//   - credly_state_errors_total{backend, operation} (Counter): Watermark and fingerprint store errors
//
// Ingestion Metrics (pkg/ingest):
//   - credly_ingest_records_total{dataset} (Counter): Records written by dataset
//   - credly_ingest_failures_total{load_type} (Counter): Failed invocations ("invalid" for bad events)
//   - credly_ingest_invocation_duration_seconds{load_type} (Histogram)
//   - credly_template_fingerprint_skips_total (Counter): Template runs skipped as unchanged
//
// Example Prometheus Queries:
//
//   # Retry Rate by Class
//   sum by (error_class) (rate(credly_http_retries_total[1h]))
//
//   # Invocation Failure Ratio
//   sum(rate(credly_ingest_failures_total[1d])) /
//   sum(rate(credly_ingest_invocation_duration_seconds_count[1d]))
//
//   # Partition Clear Problems
//   increase(credly_partition_clear_failures_total[1d]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(credly_http_request_duration_seconds_bucket[5m]))
