// Package metrics exposes Prometheus collectors for training and prediction.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the dil collectors. A nil *Metrics is a no-op.
type Metrics struct {
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingAccuracy prometheus.Gauge
	trainingSamples  prometheus.Gauge
	predictions      *prometheus.CounterVec
	predictionTime   prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training attempts by outcome.",
		}, []string{"status"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall-clock duration of completed training runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		trainingAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_accuracy",
			Help:      "Training-set accuracy of the current model.",
		}),
		trainingSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_samples",
			Help:      "Samples used to train the current model.",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Served predictions by predicted language.",
		}, []string{"language"}),
		predictionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent extracting features and scoring.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.trainingRuns, m.trainingDuration, m.trainingAccuracy,
			m.trainingSamples, m.predictions, m.predictionTime)
	}
	return m
}

// ObserveTraining records a training attempt. Duration, accuracy and samples are
// recorded only for the "trained" status.
func (m *Metrics) ObserveTraining(status string, d time.Duration, accuracy float64, samples int) {
	if m == nil {
		return
	}
	m.trainingRuns.WithLabelValues(status).Inc()
	if status != "trained" {
		return
	}
	m.trainingDuration.Observe(d.Seconds())
	m.trainingAccuracy.Set(accuracy)
	m.trainingSamples.Set(float64(samples))
}

// ObservePrediction records a served prediction.
func (m *Metrics) ObservePrediction(language string, d time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(language).Inc()
	m.predictionTime.Observe(d.Seconds())
}
