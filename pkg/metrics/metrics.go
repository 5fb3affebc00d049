// Package metrics holds the process-wide request counters and documents every
// Prometheus series the edge cache exports. Component metrics are defined in
// their own packages (cache, admission, origin, server) to keep packages
// independent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name exported by the edge cache.
const Namespace = "edge"

// Registry is the Prometheus registerer used by the edge cache.
// Component metrics register themselves via promauto on the default registry.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Counters (pkg/metrics, Counters collector):
//   - edge_requests_total (Counter): Requests handled by the dispatcher
//
// Cache Metrics (pkg/cache):
//   - edge_cache_hits_total (Counter): Lookups answered from cache
//   - edge_cache_misses_total (Counter): Lookups that found no entry
//   - edge_cache_evictions_total (Counter): Entries evicted by LRU policy
//   - edge_cache_entries (Gauge): Live entries across all shards
//
// Admission Metrics (pkg/admission):
//   - edge_admission_permits_in_use (Gauge): Connections currently admitted
//   - edge_admission_capacity (Gauge): Total permit budget
//   - edge_admission_waiting (Gauge): Connections waiting for a permit
//   - edge_admission_rejections_total (Counter): Acquires that timed out
//   - edge_admission_wait_seconds (Histogram): Time spent waiting for a permit
//
// Origin Metrics (pkg/origin):
//   - edge_origin_requests_total{origin, outcome} (Counter): Backend calls by outcome
//   - edge_origin_request_duration_seconds{origin} (Histogram): Backend latency
//   - edge_origin_retries_total{error_class} (Counter): Retry attempts
//   - edge_origin_retry_exhausted_total{error_class} (Counter): Calls that ran out of retries
//
// Dispatch Metrics (pkg/dispatch):
//   - edge_dispatch_responses_total{status} (Counter): Responses by status code
//   - edge_dispatch_coalesced_total (Counter): Misses that joined an in-flight fetch
//
// Front End Metrics (pkg/server):
//   - edge_server_connections_accepted_total (Counter): Raw TCP connections accepted
//   - edge_server_accept_errors_total{kind} (Counter): Accept errors, temporary or fatal
//   - edge_server_tls_handshake_failures_total (Counter): Handshakes that failed
//   - edge_server_negotiated_protocol_total{protocol} (Counter): ALPN result per TLS connection
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	rate(edge_cache_hits_total[5m]) /
//	(rate(edge_cache_hits_total[5m]) + rate(edge_cache_misses_total[5m]))
//
//	# Admission Saturation
//	edge_admission_permits_in_use / on() group_left edge_admission_capacity
//
//	# P95 Origin Latency
//	histogram_quantile(0.95, rate(edge_origin_request_duration_seconds_bucket[5m]))
