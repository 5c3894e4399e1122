package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	*externalCalls

	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal        *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	retrievedChunks   prometheus.Histogram
	departmentSources *prometheus.CounterVec
	contextURLs       prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome (answered or fallback).",
		},
		[]string{"service", "outcome"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Conversation turn duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "outcome"},
	)
	retrievedChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "retrieval",
			Name:        "chunks",
			Help:        "Chunks retrieved per question.",
			Buckets:     []float64{0, 1, 2, 3, 4, 6, 8},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	departmentSources := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "department_info_total",
			Help:      "Where the department contact in a context came from (matched, carried, none).",
		},
		[]string{"service", "source"},
	)
	contextURLs := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "retrieval",
			Name:        "context_urls",
			Help:        "Distinct URLs appended to a context.",
			Buckets:     []float64{0, 1, 2, 4, 8, 16},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		turnDuration,
		retrievedChunks,
		departmentSources,
		contextURLs,
	)

	return &HTTPServerMetrics{
		externalCalls:     newExternalCalls(service, registry),
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		turnsTotal:        turnsTotal,
		turnDuration:      turnDuration,
		retrievedChunks:   retrievedChunks,
		departmentSources: departmentSources,
		contextURLs:       contextURLs,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/sessions/") {
		return path
	}
	if strings.HasSuffix(path, "/messages") {
		return "/v1/sessions/{session_id}/messages"
	}
	return "/v1/sessions/{session_id}"
}

func (m *HTTPServerMetrics) ObserveTurn(outcome string, duration time.Duration) {
	m.turnsTotal.WithLabelValues(m.service, outcome).Inc()
	m.turnDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveRetrieval(chunks int, departmentSource string, urls int) {
	m.retrievedChunks.Observe(float64(chunks))
	m.departmentSources.WithLabelValues(m.service, departmentSource).Inc()
	m.contextURLs.Observe(float64(urls))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
