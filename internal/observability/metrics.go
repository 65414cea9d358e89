package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors for generation and persistence calls.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	retries            *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	transitions        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generationCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdash_generation_calls_total",
				Help: "Generation client calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentdash_generation_duration_seconds",
				Help:    "Wall time of generation client calls including retries",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"op"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdash_backend_retries_total",
				Help: "Backoff retries after the backend reported overload",
			},
			[]string{"model"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdash_fallbacks_total",
				Help: "Deterministic fallbacks produced instead of backend output",
			},
			[]string{"op"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdash_step_transitions_total",
				Help: "Conversation step transitions",
			},
			[]string{"from", "to"},
		),
	}
	m.registry.MustRegister(
		m.generationCalls,
		m.generationDuration,
		m.retries,
		m.fallbacks,
		m.transitions,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveGeneration(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationCalls.WithLabelValues(op, outcome).Inc()
	m.generationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRetry(model string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(model).Inc()
}

func (m *Metrics) IncFallback(op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
