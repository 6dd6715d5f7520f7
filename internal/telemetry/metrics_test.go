package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordRunsAndGenerations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveGeneration(50)
	m.ObserveGeneration(50)
	m.ObserveRun(OutcomeDone, 0.02, 150*time.Millisecond)
	m.ObserveRun(OutcomeFailed, 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.evaluations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.bestFitness))
}

func TestMetricsDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.True(t, errors.Is(err, ErrRegistrationFailed))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration(10)
	m.ObserveRun(OutcomeCapped, 0.1, time.Second)
}
