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
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal      *prometheus.CounterVec
	retrievalFallback   *prometheus.CounterVec
	retrievalEmptyTotal *prometheus.CounterVec
	retrievalCitations  *prometheus.HistogramVec
	retrievalConfidence *prometheus.HistogramVec
	retrievalDuration   *prometheus.HistogramVec
	rejectedTotal       *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "replica",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total successful retrievals by executed strategy.",
		},
		[]string{"service", "strategy"},
	)
	retrievalFallback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "graph_fallback_total",
			Help:      "Total retrievals that fell back from graph to vector search.",
		},
		[]string{"service"},
	)
	retrievalEmptyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "empty_total",
			Help:      "Total retrievals without citations.",
		},
		[]string{"service"},
	)
	retrievalCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "citations",
			Help:      "Distribution of citations per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service"},
	)
	retrievalConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "confidence",
			Help:      "Distribution of mean citation relevance per retrieval.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalFallback,
		retrievalEmptyTotal,
		retrievalCitations,
		retrievalConfidence,
		retrievalDuration,
		rejectedTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		retrievalTotal:      retrievalTotal,
		retrievalFallback:   retrievalFallback,
		retrievalEmptyTotal: retrievalEmptyTotal,
		retrievalCitations:  retrievalCitations,
		retrievalConfidence: retrievalConfidence,
		retrievalDuration:   retrievalDuration,
		rejectedTotal:       rejectedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/videos/"):
		rest := strings.TrimPrefix(path, "/v1/videos/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return "/v1/videos/{video_id}" + rest[i:]
		}
		return "/v1/videos/{video_id}"
	case strings.HasPrefix(path, "/v1/creators/"):
		rest := strings.TrimPrefix(path, "/v1/creators/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return "/v1/creators/{creator_id}" + rest[i:]
		}
		return "/v1/creators/{creator_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRetrieval(service, strategy string, graphFallback bool, citations int, confidence float64, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, strategy).Inc()
	m.retrievalDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
	m.retrievalCitations.WithLabelValues(service).Observe(float64(citations))
	if graphFallback {
		m.retrievalFallback.WithLabelValues(service).Inc()
	}
	if citations == 0 {
		m.retrievalEmptyTotal.WithLabelValues(service).Inc()
		return
	}
	m.retrievalConfidence.WithLabelValues(service).Observe(confidence)
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
