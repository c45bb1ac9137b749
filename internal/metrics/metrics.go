package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPCollector exposes Prometheus metrics for inbound HTTP requests.
type HTTPCollector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewHTTPCollector constructs a collector with default histograms/counters.
func NewHTTPCollector() (*HTTPCollector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nerdboard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nerdboard",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	if err := registry.Register(requestDuration); err != nil {
		return nil, err
	}

	if err := registry.Register(requestTotal); err != nil {
		return nil, err
	}

	collector := &HTTPCollector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}

	return collector, nil
}

// Registry exposes the underlying registry so other collectors can
// register against the same /metrics endpoint.
func (c *HTTPCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *HTTPCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *HTTPCollector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// PipelineCollector exposes Prometheus metrics for the forecasting
// pipeline: prediction batches, model training, and data quality.
type PipelineCollector struct {
	predictionsCreated *prometheus.CounterVec
	predictionsSkipped *prometheus.CounterVec
	predictionFailures prometheus.Counter
	batchDuration      prometheus.Histogram
	trainingRuns       *prometheus.CounterVec
	modelAccuracy      *prometheus.GaugeVec
	dataQualityScore   *prometheus.GaugeVec
	capacitySnapshots  prometheus.Counter
}

// NewPipelineCollector constructs a pipeline collector and registers it
// against the provided registry.
func NewPipelineCollector(registry *prometheus.Registry) (*PipelineCollector, error) {
	c := &PipelineCollector{
		predictionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nerdboard",
			Subsystem: "pipeline",
			Name:      "predictions_created_total",
			Help:      "Shortage predictions persisted, by horizon.",
		}, []string{"horizon"}),
		predictionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nerdboard",
			Subsystem: "pipeline",
			Name:      "predictions_skipped_total",
			Help:      "Shortage predictions suppressed as duplicates, by horizon.",
		}, []string{"horizon"}),
		predictionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nerdboard",
			Subsystem: "pipeline",
			Name:      "prediction_failures_total",
			Help:      "Subject/horizon prediction attempts that returned an error.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nerdboard",
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Duration of full prediction batch runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nerdboard",
			Subsystem: "model",
			Name:      "training_runs_total",
			Help:      "Classifier training runs, by outcome.",
		}, []string{"outcome"}),
		modelAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nerdboard",
			Subsystem: "model",
			Name:      "accuracy",
			Help:      "Holdout accuracy of the most recent training run, by horizon.",
		}, []string{"horizon"}),
		dataQualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nerdboard",
			Subsystem: "quality",
			Name:      "table_score",
			Help:      "Most recent data quality score per table.",
		}, []string{"table"}),
		capacitySnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nerdboard",
			Subsystem: "capacity",
			Name:      "snapshots_total",
			Help:      "Capacity snapshots written.",
		}),
	}

	collectors := []prometheus.Collector{
		c.predictionsCreated,
		c.predictionsSkipped,
		c.predictionFailures,
		c.batchDuration,
		c.trainingRuns,
		c.modelAccuracy,
		c.dataQualityScore,
		c.capacitySnapshots,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// PredictionCreated records a persisted prediction for a horizon.
func (c *PipelineCollector) PredictionCreated(horizon string) {
	c.predictionsCreated.WithLabelValues(horizon).Inc()
}

// PredictionSkipped records a duplicate-suppressed prediction for a horizon.
func (c *PipelineCollector) PredictionSkipped(horizon string) {
	c.predictionsSkipped.WithLabelValues(horizon).Inc()
}

// PredictionFailed records a failed subject/horizon attempt.
func (c *PipelineCollector) PredictionFailed() {
	c.predictionFailures.Inc()
}

// ObserveBatch records the duration of a full prediction batch.
func (c *PipelineCollector) ObserveBatch(d time.Duration) {
	c.batchDuration.Observe(d.Seconds())
}

// TrainingCompleted records a training run outcome and holdout accuracy.
func (c *PipelineCollector) TrainingCompleted(horizon string, accuracy float64) {
	c.trainingRuns.WithLabelValues("success").Inc()
	c.modelAccuracy.WithLabelValues(horizon).Set(accuracy)
}

// TrainingFailed records a failed training run.
func (c *PipelineCollector) TrainingFailed() {
	c.trainingRuns.WithLabelValues("failure").Inc()
}

// SetQualityScore records the latest quality score for a table.
func (c *PipelineCollector) SetQualityScore(table string, score float64) {
	c.dataQualityScore.WithLabelValues(table).Set(score)
}

// CapacitySnapshotWritten records one persisted capacity snapshot.
func (c *PipelineCollector) CapacitySnapshotWritten() {
	c.capacitySnapshots.Inc()
}
