package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.PopulationSize, cfg.PopulationSize)
	assert.Equal(t, 250, cfg.Generations)
	assert.Equal(t, 2, cfg.Runs)
	assert.Equal(t, 0.7, cfg.CrossoverProb)
	assert.Equal(t, 15, cfg.Retain)
	assert.Equal(t, "VH", cfg.Target)
	assert.Equal(t, 100, cfg.MaxIterations)
	assert.Equal(t, 0.001, cfg.Threshold)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, []int{5, 15, 30}, cfg.Experiment.Retains)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fcmsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model_dir: models/i40
case: smallco
population_size: 20
retain: 30
excluded: [cloud]
experiment:
  crossover_probs: [0.6]
`), 0o644))

	t.Setenv("FCMSIM_RETAIN", "40")
	t.Setenv("FCMSIM_SEED", "9")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("retain", 0, "")
	fs.Int("runs", 5, "")
	fs.String("target", "", "")
	require.NoError(t, fs.Parse([]string{"--target", "H"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "models/i40", cfg.ModelDir)
	assert.Equal(t, 20, cfg.PopulationSize)
	assert.Equal(t, 40, cfg.Retain, "env overrides file")
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, "H", cfg.Target, "changed flag overrides default")
	assert.Equal(t, 2, cfg.Runs, "unchanged flag must not override default")
	assert.Equal(t, []string{"cloud"}, cfg.Excluded)
	assert.Equal(t, []float64{0.6}, cfg.Experiment.CrossoverProbs)
	assert.NoError(t, cfg.RequireCase())
	assert.Equal(t, filepath.Join("cases", "smallco"), cfg.CaseDir(cfg.Case))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"crossover": "crossover_prob: 1.5\n",
		"retain":    "retain: 120\n",
		"mutator":   "mutator: gaussian\n",
		"store":     "store: sqlite\n",
		"size":      "population_size: 0\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path, nil)
		assert.ErrorIs(t, err, ErrInvalid, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestRequireCase(t *testing.T) {
	cfg := Defaults()
	assert.ErrorIs(t, cfg.RequireCase(), ErrInvalid)
	cfg.ModelDir = "m"
	assert.ErrorIs(t, cfg.RequireCase(), ErrInvalid)
	cfg.Case = "c"
	assert.NoError(t, cfg.RequireCase())
	assert.Equal(t, "/abs/case", cfg.CaseDir("/abs/case"))
}
