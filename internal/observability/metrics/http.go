package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ka"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragRequestsTotal         *prometheus.CounterVec
	ragRetrievalSkippedTotal *prometheus.CounterVec
	ragWebSearchTotal        *prometheus.CounterVec
	ragRetrievedChunks       *prometheus.HistogramVec
	ragDuration              *prometheus.HistogramVec
	agentRunsTotal           *prometheus.CounterVec
	agentIterations          *prometheus.HistogramVec
	agentToolCallsTotal      *prometheus.CounterVec
	circuitBreakerState      *prometheus.GaugeVec
	rateLimitedTotal         *prometheus.CounterVec
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
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total successful RAG requests by query classification.",
		},
		[]string{"service", "query_type", "complexity"},
	)
	ragRetrievalSkippedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_skipped_total",
			Help:      "Total RAG requests answered without retrieval.",
		},
		[]string{"service"},
	)
	ragWebSearchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "web_search_total",
			Help:      "Web search fallback decisions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per successful RAG request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "RAG execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed agent runs by status.",
		},
		[]string{"service", "agent", "status"},
	)
	agentIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Distribution of agent loop iterations per run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"service", "agent"},
	)
	agentToolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	circuitBreakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the per-client rate limiter.",
		},
		[]string{"service", "path"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragRequestsTotal,
		ragRetrievalSkippedTotal,
		ragWebSearchTotal,
		ragRetrievedChunks,
		ragDuration,
		agentRunsTotal,
		agentIterations,
		agentToolCallsTotal,
		circuitBreakerState,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:                 registry,
		requestTotal:             requestTotal,
		requestDuration:          requestDuration,
		requestInFlight:          requestInFlight,
		ragRequestsTotal:         ragRequestsTotal,
		ragRetrievalSkippedTotal: ragRetrievalSkippedTotal,
		ragWebSearchTotal:        ragWebSearchTotal,
		ragRetrievedChunks:       ragRetrievedChunks,
		ragDuration:              ragDuration,
		agentRunsTotal:           agentRunsTotal,
		agentIterations:          agentIterations,
		agentToolCallsTotal:      agentToolCallsTotal,
		circuitBreakerState:      circuitBreakerState,
		rateLimitedTotal:         rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RAGObservation is what the handler layer reports after a query.
type RAGObservation struct {
	QueryType        string
	Complexity       string
	RetrievalSkipped bool
	WebSearchUsed    bool
	ChunksRetrieved  int
	Duration         time.Duration
}

func (m *HTTPServerMetrics) RecordRAGObservation(service string, obs RAGObservation) {
	m.ragDuration.WithLabelValues(service).Observe(obs.Duration.Seconds())
	if obs.RetrievalSkipped {
		m.ragRetrievalSkippedTotal.WithLabelValues(service).Inc()
		return
	}
	m.ragRequestsTotal.WithLabelValues(service, orUnknown(obs.QueryType), orUnknown(obs.Complexity)).Inc()
	m.ragRetrievedChunks.WithLabelValues(service).Observe(float64(obs.ChunksRetrieved))

	outcome := "skipped"
	if obs.WebSearchUsed {
		outcome = "used"
	}
	m.ragWebSearchTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordAgentRun(service, agent, status string, iterations int) {
	m.agentRunsTotal.WithLabelValues(service, orUnknown(agent), orUnknown(status)).Inc()
	if iterations > 0 {
		m.agentIterations.WithLabelValues(service, orUnknown(agent)).Observe(float64(iterations))
	}
}

func (m *HTTPServerMetrics) RecordAgentToolCall(service, tool, status string) {
	m.agentToolCallsTotal.WithLabelValues(service, orUnknown(tool), orUnknown(status)).Inc()
}

// RecordBreakerState maps closed/half_open/open onto 0/1/2.
func (m *HTTPServerMetrics) RecordBreakerState(service, operation, state string) {
	value := 0.0
	switch state {
	case "half_open":
		value = 1
	case "open":
		value = 2
	}
	m.circuitBreakerState.WithLabelValues(service, operation).Set(value)
}

func (m *HTTPServerMetrics) RecordRateLimited(service, path string) {
	m.rateLimitedTotal.WithLabelValues(service, path).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
