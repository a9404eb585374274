package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge host.
type Metrics struct {
	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec
	DispatchDuration prometheus.Histogram

	// Handle registry metrics
	HandlesActive     prometheus.Gauge
	HandlesRegistered prometheus.Counter

	// Channel metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_dispatch_total",
				Help: "Total number of dispatched bridge requests",
			},
			[]string{"kind"},
		),
		DispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_dispatch_errors_total",
				Help: "Total number of dispatch failures by error kind",
			},
			[]string{"kind"},
		),
		DispatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_dispatch_duration_seconds",
				Help:    "Dispatch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		HandlesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_handles_active",
				Help: "Number of live handles in the registry",
			},
		),
		HandlesRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_handles_registered_total",
				Help: "Total number of handles ever registered",
			},
		),
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_ws_connections",
				Help: "Number of active channel peers",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_ws_messages_total",
				Help: "Total channel messages by direction",
			},
			[]string{"direction"},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// RecordDispatch records one dispatch outcome. errKind is "" on success.
func (m *Metrics) RecordDispatch(kind string, duration time.Duration, errKind string) {
	m.DispatchTotal.WithLabelValues(kind).Inc()
	m.DispatchDuration.Observe(duration.Seconds())
	if errKind != "" {
		m.DispatchErrors.WithLabelValues(errKind).Inc()
	}
}

// SetHandles updates the live handle gauge.
func (m *Metrics) SetHandles(n int) {
	m.HandlesActive.Set(float64(n))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
