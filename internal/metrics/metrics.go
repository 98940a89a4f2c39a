// Package metrics exposes the prometheus instruments of the topology view
// server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric of the server on a private prometheus
// registry.
type Registry struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SSEClients          prometheus.Gauge

	// View service
	ViewOperationsTotal   *prometheus.CounterVec
	ViewOperationDuration *prometheus.HistogramVec
	LoadedNodes           prometheus.Gauge
	VisibleNodes          prometheus.Gauge
	AggregatedNodes       prometheus.Gauge

	// Graph
	GraphNodes *prometheus.GaugeVec

	// Snapshots
	SnapshotOperationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a Registry with all metrics initialised, plus the
// standard Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r.initHTTPMetrics()
	r.initViewMetrics()
	r.initGraphMetrics()
	r.initSnapshotMetrics()
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer returns the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topoview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topoview_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	r.SSEClients = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topoview_sse_clients",
			Help: "Number of connected event stream clients",
		},
	)
}

func (r *Registry) initViewMetrics() {
	r.ViewOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topoview_view_operations_total",
			Help: "Total number of view service operations",
		},
		[]string{"operation"},
	)
	r.ViewOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "topoview_view_operation_duration_seconds",
			Help: "View service operation latency in seconds",
			// expand should stay under 200ms and zoom under 300ms
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .2, .3, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
	r.LoadedNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topoview_view_loaded_nodes",
			Help: "Nodes loaded by the view service",
		},
	)
	r.VisibleNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topoview_view_visible_nodes",
			Help: "Nodes in the current visible set",
		},
	)
	r.AggregatedNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "topoview_view_aggregated_nodes",
			Help: "Aggregate nodes built by the last zoom",
		},
	)
}

func (r *Registry) initGraphMetrics() {
	r.GraphNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topoview_graph_nodes",
			Help: "Nodes in the topology graph by type",
		},
		[]string{"type"},
	)
}

func (r *Registry) initSnapshotMetrics() {
	r.SnapshotOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "topoview_snapshot_operations_total",
			Help: "Total number of view snapshot operations",
		},
		[]string{"operation", "status"},
	)
}

// ---------------------------------------------------------------------------
// Recording helpers
// ---------------------------------------------------------------------------

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveOperation records one view service operation.
func (r *Registry) ObserveOperation(op string, d time.Duration) {
	r.ViewOperationsTotal.WithLabelValues(op).Inc()
	r.ViewOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetViewGauges publishes the current view sizes.
func (r *Registry) SetViewGauges(loaded, visible, aggregated int) {
	r.LoadedNodes.Set(float64(loaded))
	r.VisibleNodes.Set(float64(visible))
	r.AggregatedNodes.Set(float64(aggregated))
}

// SetGraphNodes publishes node counts per type.
func (r *Registry) SetGraphNodes(byType map[string]int) {
	r.GraphNodes.Reset()
	for t, n := range byType {
		r.GraphNodes.WithLabelValues(t).Set(float64(n))
	}
}

// RecordSnapshotOperation counts a snapshot operation by outcome.
func (r *Registry) RecordSnapshotOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.SnapshotOperationsTotal.WithLabelValues(operation, status).Inc()
}
