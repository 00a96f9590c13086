package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the balancer's Prometheus instrumentation.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	instances       prometheus.Gauge
	inflight        *prometheus.GaugeVec
}

// NewMetrics registers the balancer metrics on reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossing",
			Subsystem: "balancer",
			Name:      "requests_total",
			Help:      "Requests forwarded by the balancer, by operation, controller and outcome.",
		}, []string{"operation", "controller", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crossing",
			Subsystem: "balancer",
			Name:      "request_duration_seconds",
			Help:      "End-to-end forwarding latency, including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		instances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossing",
			Subsystem: "balancer",
			Name:      "controller_instances",
			Help:      "Number of registered controller instances.",
		}),
		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crossing",
			Subsystem: "balancer",
			Name:      "inflight_requests",
			Help:      "Requests currently in flight per controller.",
		}, []string{"controller"}),
	}
}

func (m *Metrics) observeOutcome(op, controller, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op, controller, outcome).Inc()
}

func (m *Metrics) observeDuration(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) setInstances(n int) {
	if m == nil {
		return
	}
	m.instances.Set(float64(n))
}

func (m *Metrics) addInflight(controller string, delta float64) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(controller).Add(delta)
}
