// Package metrics provides Prometheus collectors for sync, download, and
// catalog-load activity. Each Metrics instance owns its registry; the server
// exposes it on /metrics.
package metrics
