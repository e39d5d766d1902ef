package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relief_map"

// Metrics holds the Prometheus collectors for fetching, decoding and rendering.
type Metrics struct {
	FetchRequests  *prometheus.CounterVec   // labels: endpoint={map_data,dashboard_stats}, outcome={success,error}
	FetchDuration  *prometheus.HistogramVec // labels: endpoint
	RecordsSkipped *prometheus.CounterVec   // labels: kind={disaster,center,allocation}, stage={decode,render}
	RenderPasses   *prometheus.CounterVec   // labels: layer
	Markers        *prometheus.GaugeVec     // labels: layer
	LayerVisible   *prometheus.GaugeVec     // labels: layer
	Notifications  *prometheus.CounterVec   // labels: level
	PollerRunning  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.RecordsSkipped,
		m.RenderPasses,
		m.Markers,
		m.LayerVisible,
		m.Notifications,
		m.PollerRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Backend fetches by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Backend fetch duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"endpoint"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Malformed records dropped by kind and stage.",
		}, []string{"kind", "stage"}),
		RenderPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_passes_total",
			Help:      "Layer render passes.",
		}, []string{"layer"}),
		Markers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markers",
			Help:      "Markers currently held by each layer.",
		}, []string{"layer"}),
		LayerVisible: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_visible",
			Help:      "1 when the layer is attached to the map, 0 otherwise.",
		}, []string{"layer"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User notifications published by level.",
		}, []string{"level"}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 while the refresh scheduler is running.",
		}),
	}
}
