// Package metrics provides Prometheus metrics instrumentation for the
// forecaster.
//
// It exposes operational metrics about the pipeline's per-stage timing
// (weather fetch, feature build, inference), cycle freshness, and error
// tracking. All metrics are exposed via the /metrics HTTP endpoint for
// Prometheus scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	WeatherFetchSeconds  prometheus.Histogram
	FeatureBuildSeconds  prometheus.Histogram
	ModelPredictSeconds  prometheus.Histogram
	CycleDurationSeconds prometheus.Histogram
	LastCycleAgeSeconds  prometheus.Gauge
	PlantsProcessed      prometheus.Gauge
	ModelsSkipped        *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		WeatherFetchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_weather_fetch_seconds",
			Help:    "Time spent fetching a weather forecast for one plant",
			Buckets: prometheus.DefBuckets,
		}),

		FeatureBuildSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_feature_build_seconds",
			Help:    "Time spent resolving a feature matrix for one model",
			Buckets: prometheus.DefBuckets,
		}),

		ModelPredictSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_model_predict_seconds",
			Help:    "Time spent running inference for one model",
			Buckets: prometheus.DefBuckets,
		}),

		CycleDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_cycle_duration_seconds",
			Help:    "Total wall time of one pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		LastCycleAgeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_last_cycle_age_seconds",
			Help: "Set to 0 when a pipeline cycle completes; not advanced between cycles",
		}),

		PlantsProcessed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_plants_processed",
			Help: "Number of plants successfully processed in the last cycle",
		}),

		ModelsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_models_skipped_total",
			Help: "Number of models skipped during a cycle, by reason",
		}, []string{"reason"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordWeatherFetch records the time spent fetching one plant's forecast.
func (m *Metrics) RecordWeatherFetch(seconds float64) {
	m.WeatherFetchSeconds.Observe(seconds)
}

// RecordFeatureBuild records the time spent resolving one model's features.
func (m *Metrics) RecordFeatureBuild(seconds float64) {
	m.FeatureBuildSeconds.Observe(seconds)
}

// RecordPredict records the time spent on one model's inference call.
func (m *Metrics) RecordPredict(seconds float64) {
	m.ModelPredictSeconds.Observe(seconds)
}

// RecordCycle records the total duration of a pipeline run and resets the
// freshness gauge.
func (m *Metrics) RecordCycle(seconds float64) {
	m.CycleDurationSeconds.Observe(seconds)
	m.LastCycleAgeSeconds.Set(0)
}

// SetPlantsProcessed sets the count of plants successfully processed.
func (m *Metrics) SetPlantsProcessed(n int) {
	m.PlantsProcessed.Set(float64(n))
}

// RecordModelSkipped increments the skip counter for a reason (e.g.
// "unsupported_feature", "unknown_plant", "artifact_decode").
func (m *Metrics) RecordModelSkipped(reason string) {
	m.ModelsSkipped.WithLabelValues(reason).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
