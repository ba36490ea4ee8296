package telemetry

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Recorder exports training metrics on its own registry. A nil Recorder
// discards everything.
type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	epochLoss   *prometheus.GaugeVec
	accuracy    *prometheus.GaugeVec
	predictions *prometheus.CounterVec
	publishErrs *prometheus.CounterVec
}

// New creates a recorder with Go runtime and process collectors registered
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_runs_total",
				Help: "Training runs by model type and outcome",
			},
			[]string{"model_type", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "augur_run_duration_seconds",
				Help:    "Wall time of a (ticker, model) run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"model_type"},
		),
		epochLoss: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "augur_epoch_loss",
				Help: "Most recent epoch loss",
			},
			[]string{"ticker", "model_type", "split"},
		),
		accuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "augur_prediction_accuracy",
				Help: "Price accuracy of the latest run",
			},
			[]string{"ticker", "model_type"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_predictions_total",
				Help: "Validation-day predictions emitted",
			},
			[]string{"model_type"},
		),
		publishErrs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augur_sink_errors_total",
				Help: "Failed writes to optional sinks",
			},
			[]string{"sink"},
		),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordRun counts a finished run and observes its duration
func (r *Recorder) RecordRun(modelType, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(modelType, status).Inc()
	if status == StatusOK {
		r.duration.WithLabelValues(modelType).Observe(elapsed.Seconds())
	}
}

// RecordEpoch sets the latest train and validation losses
func (r *Recorder) RecordEpoch(ticker, modelType string, trainLoss, valLoss float64) {
	if r == nil {
		return
	}
	r.epochLoss.WithLabelValues(ticker, modelType, "train").Set(trainLoss)
	r.epochLoss.WithLabelValues(ticker, modelType, "val").Set(valLoss)
}

// RecordResult sets accuracy and counts emitted predictions
func (r *Recorder) RecordResult(ticker, modelType string, accuracy float64, predictions int) {
	if r == nil {
		return
	}
	if !math.IsNaN(accuracy) {
		r.accuracy.WithLabelValues(ticker, modelType).Set(accuracy)
	}
	r.predictions.WithLabelValues(modelType).Add(float64(predictions))
}

// RecordSinkError counts a failed write to an optional sink
func (r *Recorder) RecordSinkError(sink string) {
	if r == nil {
		return
	}
	r.publishErrs.WithLabelValues(sink).Inc()
}
