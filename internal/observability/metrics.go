package observability

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Enabled reports whether metrics collection is switched on.
func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Metrics aggregates the instrument set for the gauge services.
type Metrics struct {
	registry *prometheus.Registry

	opDuration *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
	retries    *prometheus.CounterVec
	cascades   *prometheus.CounterVec
	pairOps    *prometheus.CounterVec
	events     *prometheus.CounterVec
}

// NewMetrics builds an isolated registry so tests can instantiate
// without colliding with the default global one.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gaugetrack",
			Name:      "operation_duration_seconds",
			Help:      "Duration of transactional service operations.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op", "status"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaugetrack",
			Name:      "storage_conflicts_total",
			Help:      "Transient storage contention events by operation.",
		}, []string{"op"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaugetrack",
			Name:      "operation_retries_total",
			Help:      "Retry attempts triggered by transient contention.",
		}, []string{"op"}),
		cascades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaugetrack",
			Name:      "cascades_total",
			Help:      "Companion cascades by kind and outcome.",
		}, []string{"kind", "cascaded"}),
		pairOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaugetrack",
			Name:      "pair_operations_total",
			Help:      "Pairing lifecycle operations by action.",
		}, []string{"action"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaugetrack",
			Name:      "events_published_total",
			Help:      "Domain events handed to the publisher, by outcome.",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) ObserveOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncConflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) IncCascade(kind string, cascaded bool) {
	if m == nil {
		return
	}
	outcome := "false"
	if cascaded {
		outcome = "true"
	}
	m.cascades.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncPairOperation(action string) {
	if m == nil {
		return
	}
	m.pairOps.WithLabelValues(action).Inc()
}

func (m *Metrics) IncEventPublished(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
