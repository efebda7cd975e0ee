package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all agent metrics
type Metrics struct {
	// Transaction sync metrics
	SyncResults      *prometheus.CounterVec
	SyncPassDuration prometheus.Histogram
	QueueDepth       *prometheus.GaugeVec
	SubmitRetries    prometheus.Counter

	// Catalog metrics
	CatalogSyncs        *prometheus.CounterVec
	CatalogProducts     prometheus.Gauge
	CatalogImagesCached prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SyncResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_results_total",
				Help:      "Transaction sync outcomes by result (synced, conflict, retryable, exhausted)",
			},
			[]string{"result"},
		),
		SyncPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_pass_duration_seconds",
				Help:      "Duration of a full sync pass in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of locally queued transactions by status",
			},
			[]string{"status"},
		),
		SubmitRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submit_retries_total",
				Help:      "Total number of transaction submission retries",
			},
		),
		CatalogSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_syncs_total",
				Help:      "Catalog sync attempts by outcome",
			},
			[]string{"outcome"},
		),
		CatalogProducts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_products",
				Help:      "Number of products in the local catalog mirror",
			},
		),
		CatalogImagesCached: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_images_cached_total",
				Help:      "Total number of product images downloaded into the cache",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.SyncResults,
		m.SyncPassDuration,
		m.QueueDepth,
		m.SubmitRetries,
		m.CatalogSyncs,
		m.CatalogProducts,
		m.CatalogImagesCached,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
