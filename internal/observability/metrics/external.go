package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "campus"

// externalCalls tracks retries and breaker state of embedding, chat and index calls.
type externalCalls struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerOpen  *prometheus.GaugeVec
}

func newExternalCalls(service string, registry *prometheus.Registry) *externalCalls {
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "retries_total",
			Help:      "Retried external calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "circuit_open",
			Help:      "1 when the operation's circuit breaker is open or half-open.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(retriesTotal, breakerOpen)

	return &externalCalls{
		service:      service,
		retriesTotal: retriesTotal,
		breakerOpen:  breakerOpen,
	}
}

func (m *externalCalls) ObserveRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *externalCalls) ObserveBreakerState(operation string, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}
