package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the catalog core. It owns a
// private registry so tests can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns      *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Counter
	CatalogLoads  *prometheus.CounterVec
	CatalogItems  prometheus.Gauge
	URLCacheOps   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_runs_total",
			Help: "Total number of manifest sync runs",
		},
		[]string{"kind", "result"},
	)

	m.SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_sync_duration_seconds",
			Help:    "Manifest sync duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	m.Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_downloads_total",
			Help: "Total number of download jobs",
		},
		[]string{"kind", "result"},
	)

	m.DownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_download_bytes_total",
			Help: "Total bytes fetched by the download manager",
		},
	)

	m.CatalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_loads_total",
			Help: "Total number of shared catalog loads",
		},
		[]string{"result"},
	)

	m.CatalogItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_items",
			Help: "Number of records in the merged catalog",
		},
	)

	m.URLCacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_url_cache_ops_total",
			Help: "Resolved-URL cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.SyncRuns,
		m.SyncDuration,
		m.Downloads,
		m.DownloadBytes,
		m.CatalogLoads,
		m.CatalogItems,
		m.URLCacheOps,
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Results used as label values.
const (
	ResultOK      = "ok"
	ResultNoOp    = "noop"
	ResultPartial = "partial"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)
