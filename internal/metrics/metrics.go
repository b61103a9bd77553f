// Package metrics provides Prometheus metrics for the training pipeline.
// A training run is a batch job, so the metrics are exposed on an optional
// HTTP endpoint for scrape-during-run and for push-style collection by the
// surrounding scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trainer.
type Metrics struct {
	// Dataset metrics
	RowsLoaded   prometheus.Gauge // Rows loaded from the dataset store
	RowsTraining prometheus.Gauge // Rows in the training pool after split and censoring
	RowsCensored prometheus.Gauge // Rows dropped or relabeled by the censoring window
	FeatureCount prometheus.Gauge // Feature vector width
	ClassCount   prometheus.Gauge // Indexed label classes

	// Run metrics
	TrainingRuns     prometheus.Counter   // Training runs started
	TrainingFailures prometheus.Counter   // Training runs aborted with an error
	FitDuration      prometheus.Histogram // Model fit duration in seconds
	HoldoutAccuracy  prometheus.Gauge     // Accuracy on the post-cutoff holdout

	// Artifact metrics
	ArtifactSaves prometheus.Counter // Successful artifact saves
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for tests,
// which need isolated collection).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RowsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_rows_loaded",
			Help: "Rows loaded from the dataset store",
		}),
		RowsTraining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_rows_training",
			Help: "Rows in the training pool after split and censoring",
		}),
		RowsCensored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_rows_censored",
			Help: "Rows dropped or relabeled by the censoring window",
		}),
		FeatureCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_feature_count",
			Help: "Width of the assembled feature vector",
		}),
		ClassCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_class_count",
			Help: "Number of indexed label classes",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdm_training_runs_total",
			Help: "Total number of training runs started",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdm_training_failures_total",
			Help: "Total number of training runs aborted with an error",
		}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdm_fit_duration_seconds",
			Help:    "Model fit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		HoldoutAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_holdout_accuracy",
			Help: "Accuracy of the fitted model on the post-cutoff holdout rows",
		}),
		ArtifactSaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "pdm_artifact_saves_total",
			Help: "Total number of successful artifact saves",
		}),
	}
}
