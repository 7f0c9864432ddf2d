// Package metric provides Prometheus metrics for Zephyrite.
//
//   - prometheus.go: registry, the /metrics handler and recording helpers
//   - collector.go: scrape-time collector over storage statistics
//
// All recording helpers are safe to call on a nil *Registry so the storage
// engines can run without metrics in tests and embedded use.
package metric
