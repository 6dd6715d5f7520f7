package modelio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fcmsim/internal/fcm"
	"fcmsim/internal/fuzzy"
)

// Case holds the linguistic baseline of every map for one scenario.
type Case struct {
	Name string
	// Labels and Baselines are keyed by map name; row 0 is the objective.
	Labels    map[string][]string
	Baselines map[string][]float64
}

// LoadCase reads <dir>/<i>_al.csv for every map of model. The aggregator
// file is optional.
func LoadCase(dir string, model *Model, scale *fuzzy.Scale) (*Case, error) {
	c := &Case{
		Name:      filepath.Base(filepath.Clean(dir)),
		Labels:    make(map[string][]string),
		Baselines: make(map[string][]float64),
	}
	for _, m := range model.SubMaps {
		if err := c.load(dir, m, scale); err != nil {
			return nil, err
		}
	}
	if model.Aggregator != nil {
		err := c.load(dir, *model.Aggregator, scale)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return c, nil
}

func (c *Case) load(dir string, m Map, scale *fuzzy.Scale) error {
	path := filepath.Join(dir, fmt.Sprintf("%d_al.csv", m.Index))
	labels, err := readLabels(path)
	if err != nil {
		return err
	}
	if len(labels) != m.Graph.Size() {
		return fmt.Errorf("%w: case %s map %q has %d activation levels, want %d", fcm.ErrConfiguration, c.Name, m.Description.Name, len(labels), m.Graph.Size())
	}
	values, err := scale.Encode(labels)
	if err != nil {
		return fmt.Errorf("case %s map %q: %w", c.Name, m.Description.Name, err)
	}
	c.Labels[m.Description.Name] = labels
	c.Baselines[m.Description.Name] = values
	return nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open activation levels: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var labels []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", fcm.ErrConfiguration, filepath.Base(path), err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		labels = append(labels, strings.TrimSpace(record[0]))
	}
	return labels, nil
}

// SolverOptions selects exclusions, the combination policy and inference
// limits for a solver built from a model and a case.
type SolverOptions struct {
	Excluded []string
	// Combiner is "aggregator", "mean" or empty (aggregator when the model
	// has one).
	Combiner    string
	MeanWeights map[string]float64
	Inference   fcm.InferenceOptions
}

// SolverConfig assembles the solver input for model under c.
func (m *Model) SolverConfig(c *Case, opts SolverOptions) (fcm.SolverConfig, error) {
	subMaps := make([]fcm.SubMap, 0, len(m.SubMaps))
	for _, sm := range m.SubMaps {
		baseline, ok := c.Baselines[sm.Description.Name]
		if !ok {
			return fcm.SolverConfig{}, fmt.Errorf("%w: case %s has no baseline for %q", fcm.ErrConfiguration, c.Name, sm.Description.Name)
		}
		subMaps = append(subMaps, fcm.SubMap{Graph: sm.Graph, Baseline: baseline})
	}

	var combiner fcm.Combiner
	switch strings.ToLower(opts.Combiner) {
	case "", "aggregator":
		if m.Aggregator == nil {
			if opts.Combiner != "" {
				return fcm.SolverConfig{}, fmt.Errorf("%w: model has no aggregator map", fcm.ErrConfiguration)
			}
			combiner = fcm.MeanCombiner{Weights: opts.MeanWeights}
			break
		}
		agg := fcm.AggregatorCombiner{Graph: m.Aggregator.Graph}
		if b, ok := c.Baselines[m.Aggregator.Description.Name]; ok {
			agg.ObjectiveBaseline = b[0]
		}
		combiner = agg
	case "mean":
		combiner = fcm.MeanCombiner{Weights: opts.MeanWeights}
	default:
		return fcm.SolverConfig{}, fmt.Errorf("%w: unknown combiner %q", fcm.ErrConfiguration, opts.Combiner)
	}

	return fcm.SolverConfig{
		SubMaps:   subMaps,
		Excluded:  opts.Excluded,
		Combiner:  combiner,
		Inference: opts.Inference,
	}, nil
}

// BuildSolver is SolverConfig followed by fcm.NewSolver.
func (m *Model) BuildSolver(c *Case, opts SolverOptions) (*fcm.Solver, error) {
	cfg, err := m.SolverConfig(c, opts)
	if err != nil {
		return nil, err
	}
	return fcm.NewSolver(cfg)
}
