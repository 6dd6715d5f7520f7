package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("dev", "loud")
	require.Error(t, err)

	l, err := New("prod", "debug")
	require.NoError(t, err)
	assert.NotNil(t, l.SugaredLogger)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("run", 2).Info("run finished", "best_fitness", 0.04)
	l.Debug("generation graded", "generation", 3)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "run finished", first.Message)
	assert.Equal(t, int64(2), first.ContextMap()["run"])
	assert.Equal(t, 0.04, first.ContextMap()["best_fitness"])
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("ignored", "k", "v")
	l.Sync()
}
