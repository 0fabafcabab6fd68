package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveFlows      prometheus.Gauge
	FlowEvents       *prometheus.CounterVec
	Operations       *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	TransformLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveFlows: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_flows",
			Help:      "Number of kiosk flows currently connected.",
		}),
		FlowEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_events_total",
			Help:      "Workflow state machine events by type.",
		}, []string{"event"}),
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Transform and deliver operations by outcome.",
		}, []string{"operation", "outcome"}),
		RateLimitDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Denied operations by limiter.",
		}, []string{"operation"}),
		TransformLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_latency_ms",
			Help:      "Latency of the AI gateway edit call in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
	}
}

func (m *Metrics) ObserveTransformLatency(d time.Duration) {
	m.TransformLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
