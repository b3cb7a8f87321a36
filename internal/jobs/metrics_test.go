package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Run("sweep", func() (int, error) { return 4, nil }))
	err := m.Run("sweep", func() (int, error) { return 2, errors.New("db down") })
	assert.EqualError(t, err, "db down")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sweep", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sweep", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sweep")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.processed.WithLabelValues("sweep")))
}

func TestNilMetricsStillRuns(t *testing.T) {
	var m *Metrics
	called := false
	err := m.Run("sweep", func() (int, error) {
		called = true
		return 0, errors.New("boom")
	})
	assert.True(t, called)
	assert.EqualError(t, err, "boom")
}

func TestNewMetricsWithoutRegisterer(t *testing.T) {
	m := NewMetrics(nil)
	require.NoError(t, m.Run("sweep", func() (int, error) { return 0, nil }))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.processed.WithLabelValues("sweep")))
}
