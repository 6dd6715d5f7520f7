package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcmsim/internal/model"
)

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("r", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	payload, err := EncodeRun(run)
	require.NoError(t, err)

	decoded, err := DecodeRun(payload)
	require.NoError(t, err)
	assert.Equal(t, run, decoded)

	run.SchemaVersion = CurrentSchemaVersion + 1
	payload, err = EncodeRun(run)
	require.NoError(t, err)
	_, err = DecodeRun(payload)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeFitnessHistoryRejectsVersionMismatch(t *testing.T) {
	history := sampleHistory()
	history[1].VersionedRecord = model.VersionedRecord{SchemaVersion: 1, CodecVersion: 0}
	payload, err := EncodeFitnessHistory(history)
	require.NoError(t, err)
	_, err = DecodeFitnessHistory(payload)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = DecodeFitnessHistory([]byte("{"))
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, CloseIfSupported(store))

	store, err = NewStore("sqlite", "runs.db")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)

	_, err = NewStore("sqlite", "")
	assert.Error(t, err)
	_, err = NewStore("postgres", "")
	assert.Error(t, err)
}
