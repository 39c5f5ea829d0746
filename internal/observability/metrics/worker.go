package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestInFlight prometheus.Gauge
	chunksTotal    *prometheus.CounterVec
	queueLag       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "worker",
			Name:      "video_ingest_total",
			Help:      "Total ingested videos by status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "worker",
			Name:      "video_ingest_duration_seconds",
			Help:      "Video ingestion duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "replica",
			Subsystem: "worker",
			Name:      "video_ingest_in_flight",
			Help:      "Number of in-flight video ingestion tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replica",
			Subsystem: "worker",
			Name:      "chunks_total",
			Help:      "Chunks handled during ingestion by outcome.",
		},
		[]string{"service", "outcome"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replica",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between transcript submission and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(ingestTotal, ingestDuration, ingestInFlight, chunksTotal, queueLag)

	return &WorkerMetrics{
		registry:       registry,
		ingestTotal:    ingestTotal,
		ingestDuration: ingestDuration,
		ingestInFlight: ingestInFlight,
		chunksTotal:    chunksTotal,
		queueLag:       queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartVideo() {
	m.ingestInFlight.Inc()
}

// FinishVideo records one ingestion. created, attempted and discarded come from the ingest result.
func (m *WorkerMetrics) FinishVideo(service string, duration time.Duration, created, attempted, discarded int, err error) {
	m.ingestInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if created > 0 {
		m.chunksTotal.WithLabelValues(service, "created").Add(float64(created))
	}
	if failed := attempted - created; failed > 0 {
		m.chunksTotal.WithLabelValues(service, "embed_failed").Add(float64(failed))
	}
	if discarded > 0 {
		m.chunksTotal.WithLabelValues(service, "discarded").Add(float64(discarded))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
