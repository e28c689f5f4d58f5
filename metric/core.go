package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the bridge-level metrics. Domain components record into
// these; anything component-specific goes through the Registry instead.
type Metrics struct {
	// Request flow
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BytesReceived   prometheus.Counter
	BytesSent       prometheus.Counter

	// Correlation engine
	WaitsInFlight    prometheus.Gauge
	WaitOutcomes     *prometheus.CounterVec
	ResponsesDropped *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all bridge metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpserver",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled by the gateway",
			},
			[]string{"path", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "httpserver",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration including the blocking wait",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30},
			},
			[]string{"path", "outcome"},
		),

		BytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "httpserver",
				Subsystem: "gateway",
				Name:      "bytes_received_total",
				Help:      "Total request body bytes received",
			},
		),

		BytesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "httpserver",
				Subsystem: "gateway",
				Name:      "bytes_sent_total",
				Help:      "Total response body bytes sent",
			},
		),

		WaitsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "httpserver",
				Subsystem: "correlation",
				Name:      "waits_in_flight",
				Help:      "Number of worker goroutines currently blocked on a pending wait",
			},
		),

		WaitOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpserver",
				Subsystem: "correlation",
				Name:      "wait_outcomes_total",
				Help:      "Pending wait resolutions by outcome",
			},
			[]string{"outcome"},
		),

		ResponsesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpserver",
				Subsystem: "correlation",
				Name:      "responses_dropped_total",
				Help:      "Inbound responses dropped at the intake boundary",
			},
			[]string{"reason"},
		),
	}
}

// collectors returns every core metric for registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDuration,
		m.BytesReceived,
		m.BytesSent,
		m.WaitsInFlight,
		m.WaitOutcomes,
		m.ResponsesDropped,
	}
}
