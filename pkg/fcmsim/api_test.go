package fcmsim

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcmsim/internal/config"
	"fcmsim/internal/fcm"
	"fcmsim/internal/fuzzy"
	"fcmsim/internal/report"
)

const (
	testModelDir = "../../internal/modelio/testdata/model"
	testCasesDir = "../../internal/modelio/testdata/cases"
)

func smallConfig(t *testing.T) config.RunConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.ModelDir = testModelDir
	cfg.CasesDir = testCasesDir
	cfg.Case = "smallco"
	cfg.PopulationSize = 10
	cfg.Generations = 5
	cfg.Runs = 2
	cfg.Seed = 7
	cfg.OutputDir = t.TempDir()
	return cfg
}

func newTestClient(t *testing.T, cfg config.RunConfig) *Client {
	t.Helper()
	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientWhatIfRunsAndHistory(t *testing.T) {
	cfg := smallConfig(t)
	client := newTestClient(t, cfg)
	ctx := context.Background()

	summary, err := client.WhatIf(ctx, WhatIfRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	assert.Equal(t, filepath.Join(cfg.OutputDir, summary.RunID), summary.ArtifactsDir)

	rec := summary.Record
	assert.Equal(t, "smallco", rec.Case)
	assert.Equal(t, 0.8, rec.TargetValue)
	assert.Equal(t, []float64{0.3, 0.5, 0.2, 0.2, 0.7}, rec.Baseline)
	require.Len(t, rec.BestGenes, 5)
	require.Len(t, rec.BestTerms, 5)
	require.Len(t, rec.GeneLabels, 5)
	assert.True(t, strings.HasPrefix(rec.GeneLabels[0], "digital/"))
	assert.True(t, strings.HasPrefix(rec.GeneLabels[4], "cloud/"))
	require.Len(t, rec.Runs, 2)
	assert.Equal(t, rec.Runs[rec.BestRun].BestFitness, rec.BestFitness)
	for i, gene := range rec.BestGenes {
		assert.GreaterOrEqual(t, gene, rec.Baseline[i], "genes only ever rise")
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, len(rec.Diff), runs[0].ChangedGenes)

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true})
	require.NoError(t, err)
	require.Len(t, history, 2)
	for i, h := range history {
		assert.Len(t, h.Mean, rec.Runs[i].Generations)
		assert.Len(t, h.Best, rec.Runs[i].Generations)
	}

	loaded, err := client.Run(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, rec.BestGenes, loaded.BestGenes)

	_, err = client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "x", Latest: true})
	assert.Error(t, err)
	_, err = client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "missing"})
	assert.Error(t, err)
}

func TestClientHistoryFallsBackToArtifacts(t *testing.T) {
	cfg := smallConfig(t)
	first := newTestClient(t, cfg)
	summary, err := first.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)

	second := newTestClient(t, cfg)
	history, err := second.FitnessHistory(context.Background(), FitnessHistoryRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Len(t, history, cfg.Runs)

	rec, err := second.Run(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.Record.BestFitness, rec.BestFitness)
}

func TestClientWhatIfIsReproducible(t *testing.T) {
	cfg := smallConfig(t)
	a, err := newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)
	cfg.Workers = 1
	b, err := newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Record.BestGenes, b.Record.BestGenes)
	assert.Equal(t, a.Record.BestFitness, b.Record.BestFitness)
	assert.Equal(t, a.Record.BestRun, b.Record.BestRun)
}

func TestClientWhatIfExclusionShrinksGenes(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Excluded = []string{"cloud"}
	summary, err := newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.5}, summary.Record.Baseline)
	assert.Len(t, summary.Record.BestGenes, 2)
	assert.Equal(t, []string{"cloud"}, summary.Record.Excluded)
}

func TestClientWhatIfErrors(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Case = ""
	_, err := newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{})
	require.ErrorIs(t, err, config.ErrInvalid)

	cfg = smallConfig(t)
	cfg.Target = "HUGE"
	_, err = newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{})
	require.ErrorIs(t, err, fuzzy.ErrUnknownTerm)

	cfg = smallConfig(t)
	_, err = newTestClient(t, cfg).WhatIf(context.Background(), WhatIfRequest{Case: "nowhere"})
	require.Error(t, err)

	cfg = smallConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestClient(t, cfg).WhatIf(ctx, WhatIfRequest{})
	require.ErrorIs(t, err, context.Canceled)

	cfg = smallConfig(t)
	cfg.Store = "sqlite"
	cfg.DBPath = ""
	_, err = New(Options{Config: cfg})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestClientSQLiteStore(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Store = "sqlite"
	cfg.DBPath = filepath.Join(t.TempDir(), "fcmsim.db")
	cfg.OutputDir = ""
	client := newTestClient(t, cfg)

	summary, err := client.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)
	assert.Empty(t, summary.ArtifactsDir)

	history, err := client.FitnessHistory(context.Background(), FitnessHistoryRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Len(t, history, cfg.Runs)

	second, err := client.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// a fresh client on the same database lists runs without any artifacts
	reopened := newTestClient(t, cfg)
	runs, err := reopened.Runs(context.Background(), RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, summary.RunID, runs[1].RunID)
	assert.Equal(t, "smallco", runs[0].Case)
	assert.Equal(t, cfg.Runs, runs[0].Runs)

	latest, err := reopened.FitnessHistory(context.Background(), FitnessHistoryRequest{Latest: true})
	require.NoError(t, err)
	assert.Len(t, latest, cfg.Runs)

	limited, err := reopened.Runs(context.Background(), RunsRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestClientRunsMergesIndexWithStore(t *testing.T) {
	cfg := smallConfig(t)
	first := newTestClient(t, cfg)
	old, err := first.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)

	// the memory store of a new client only knows its own runs
	client := newTestClient(t, cfg)
	runs, err := client.Runs(context.Background(), RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, old.RunID, runs[0].RunID)

	fresh, err := client.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)
	runs, err = client.Runs(context.Background(), RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, fresh.RunID, runs[0].RunID)
	assert.Equal(t, old.RunID, runs[1].RunID)
}

func TestClientExperimentSweep(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Runs = 1
	client := newTestClient(t, cfg)

	exp, err := client.Experiment(context.Background(), ExperimentRequest{
		ID:             "sweep",
		CrossoverProbs: []float64{0.5, 1},
		Retains:        []int{10},
	})
	require.NoError(t, err)
	require.Len(t, exp.Cells, 2)
	assert.Equal(t, 0.5, exp.Cells[0].CrossoverProb)
	assert.Equal(t, 1.0, exp.Cells[1].CrossoverProb)
	for _, cell := range exp.Cells {
		assert.Equal(t, "smallco", cell.Case)
		assert.Equal(t, 10, cell.Retain)
		assert.NotEmpty(t, cell.RunID)
		assert.Greater(t, cell.MeanGens, 0.0)
	}

	stored, ok, err := report.ReadExperiment(cfg.OutputDir, "sweep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, stored.Cells, 2)

	runs, err := client.Runs(context.Background(), RunsRequest{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = client.Experiment(context.Background(), ExperimentRequest{Retains: []int{200}})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestClientInferDocument(t *testing.T) {
	client := newTestClient(t, config.Defaults())
	res, err := client.Infer(context.Background(), InferRequest{
		Document: fcm.GraphDocument{
			Nodes: []fcm.DocNode{{ID: 1, Label: "cause"}, {ID: 2, Label: "effect"}},
			Links: []fcm.DocLink{{Source: 1, Target: 2, Weight: 0.9}},
		},
		Activation: map[int]string{1: "H"},
		Options:    fcm.DocumentOptions{ObjectiveID: 2},
	})
	require.NoError(t, err)
	require.Len(t, res.Document.Nodes, 2)
	for _, node := range res.Document.Nodes {
		require.NotNil(t, node.NumericWeight)
		assert.NotEmpty(t, node.Weight)
	}
	assert.Greater(t, *res.Document.Nodes[1].NumericWeight, 0.5)

	_, err = client.Infer(context.Background(), InferRequest{
		Document:   fcm.GraphDocument{Nodes: []fcm.DocNode{{ID: 1}}},
		Activation: map[int]string{1: "HUGE"},
		Options:    fcm.DocumentOptions{ObjectiveID: 1},
	})
	require.ErrorIs(t, err, fuzzy.ErrUnknownTerm)
}

func TestClientRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client, err := New(Options{Config: smallConfig(t), Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.WhatIf(context.Background(), WhatIfRequest{})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "fcmsim_whatif_runs_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	_, err = New(Options{Config: smallConfig(t), Registerer: reg})
	assert.Error(t, err, "metrics cannot be registered twice")
}
