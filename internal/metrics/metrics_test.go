package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTraining(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("dil", reg)

	m.ObserveTraining("trained", 2*time.Second, 0.9, 40)
	m.ObserveTraining("skipped", 0, 0, 3)
	m.ObserveTraining("trained", time.Second, 0.95, 50)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trainingRuns.WithLabelValues("trained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trainingRuns.WithLabelValues("skipped")))
	assert.Equal(t, 0.95, testutil.ToFloat64(m.trainingAccuracy))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.trainingSamples))

	n, err := testutil.GatherAndCount(reg, "dil_training_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObservePrediction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("dil", reg)

	m.ObservePrediction("en", time.Millisecond)
	m.ObservePrediction("en", time.Millisecond)
	m.ObservePrediction("bg", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("en")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.predictions))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTraining("trained", time.Second, 1, 1)
		m.ObservePrediction("en", time.Millisecond)
	})
}
