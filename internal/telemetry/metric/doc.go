// Package metric provides Prometheus metrics for snapbridge.
//
// Metrics are grouped per subsystem:
//
//   - transport.go: snapshot hand-off results, bytes, latency, segment table
//     and cleanup-queue gauges, eviction and orphan counters
//   - prometheus.go: registry and /metrics HTTP handler
//
// All collectors are created against an explicit prometheus.Registerer so
// tests can use isolated registries.
package metric
