package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IndexerMetrics struct {
	*externalCalls

	registry *prometheus.Registry

	buildTotal    *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	buildInFlight prometheus.Gauge
	indexedChunks prometheus.Gauge
}

func NewIndexerMetrics(service string) *IndexerMetrics {
	registry := prometheus.NewRegistry()

	buildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "builds_total",
			Help:      "Index builds by trigger and status.",
		},
		[]string{"service", "trigger", "status"},
	)
	buildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "build_duration_seconds",
			Help:      "Full index build duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	buildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "indexer",
			Name:        "build_in_flight",
			Help:        "1 while an index build is running.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	indexedChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "indexer",
			Name:        "indexed_chunks",
			Help:        "Chunks in the last successfully built index.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(buildTotal, buildDuration, buildInFlight, indexedChunks)

	return &IndexerMetrics{
		externalCalls: newExternalCalls(service, registry),
		registry:      registry,
		buildTotal:    buildTotal,
		buildDuration: buildDuration,
		buildInFlight: buildInFlight,
		indexedChunks: indexedChunks,
	}
}

func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IndexerMetrics) StartBuild() {
	m.buildInFlight.Inc()
}

func (m *IndexerMetrics) FinishBuild(trigger string, duration time.Duration, chunks int, err error) {
	m.buildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.indexedChunks.Set(float64(chunks))
	}

	m.buildTotal.WithLabelValues(m.service, trigger, status).Inc()
	m.buildDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
