// Package metrics defines the Prometheus metrics exported by the service:
// HTTP request counters and latencies, database query and transaction
// timings, and crawler progress counters.
package metrics
