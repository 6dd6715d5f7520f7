package fcm

import (
	"fmt"
)

// Combiner declares how included sub-map outputs fold into one scalar.
type Combiner interface {
	Name() string
	// Bind prepares the combiner for a solver whose sub-maps are names and
	// of which only the positions in included take part.
	Bind(names []string, included []int) (BoundCombiner, error)
}

type BoundCombiner interface {
	// Combine receives one output per included sub-map, in included order.
	Combine(outputs []float64, opts InferenceOptions) (float64, error)
}

// AggregatorCombiner feeds sub-map outputs into a dedicated aggregator map.
// Aggregator node 0 is the global objective and node k (k >= 1) carries the
// output of sub-map k-1. Nodes of excluded sub-maps are removed from the
// aggregator before inference.
type AggregatorCombiner struct {
	Graph Graph
	// ObjectiveBaseline is the initial activation of the aggregator objective.
	ObjectiveBaseline float64
}

func (AggregatorCombiner) Name() string {
	return "aggregator"
}

func (c AggregatorCombiner) Bind(names []string, included []int) (BoundCombiner, error) {
	if c.Graph.ObjectiveIndex != 0 {
		return nil, fmt.Errorf("%w: aggregator %q objective must be node 0", ErrConfiguration, c.Graph.Name)
	}
	if err := c.Graph.Validate(); err != nil {
		return nil, err
	}
	if c.Graph.Size() != len(names)+1 {
		return nil, fmt.Errorf("%w: aggregator %q has %d nodes, want %d (objective + one per sub-map)", ErrConfiguration, c.Graph.Name, c.Graph.Size(), len(names)+1)
	}
	if c.ObjectiveBaseline < 0 || c.ObjectiveBaseline > 1 {
		return nil, fmt.Errorf("%w: aggregator %q objective baseline outside [0,1]", ErrConfiguration, c.Graph.Name)
	}
	keep := make([]int, 0, len(included)+1)
	keep = append(keep, 0)
	for _, idx := range included {
		keep = append(keep, idx+1)
	}
	reduced, err := c.Graph.Subgraph(keep)
	if err != nil {
		return nil, err
	}
	return boundAggregator{graph: reduced, baseline: c.ObjectiveBaseline}, nil
}

type boundAggregator struct {
	graph    Graph
	baseline float64
}

func (b boundAggregator) Combine(outputs []float64, opts InferenceOptions) (float64, error) {
	initial := make([]float64, 0, len(outputs)+1)
	initial = append(initial, b.baseline)
	initial = append(initial, outputs...)
	res, err := b.graph.Infer(initial, opts)
	if err != nil {
		return 0, err
	}
	return res.Final[0], nil
}

// MeanCombiner averages included outputs, weighted by sub-map name.
// Sub-maps without an entry weigh 1.
type MeanCombiner struct {
	Weights map[string]float64
}

func (MeanCombiner) Name() string {
	return "mean"
}

func (c MeanCombiner) Bind(names []string, included []int) (BoundCombiner, error) {
	for name := range c.Weights {
		found := false
		for _, n := range names {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: mean weight for unknown sub-map %q", ErrConfiguration, name)
		}
	}
	weights := make([]float64, len(included))
	total := 0.0
	for i, idx := range included {
		w := 1.0
		if v, ok := c.Weights[names[idx]]; ok {
			w = v
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: mean weight for %q must be >= 0", ErrConfiguration, names[idx])
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: mean weights of included sub-maps sum to zero", ErrConfiguration)
	}
	return boundMean{weights: weights, total: total}, nil
}

type boundMean struct {
	weights []float64
	total   float64
}

func (b boundMean) Combine(outputs []float64, _ InferenceOptions) (float64, error) {
	sum := 0.0
	for i, v := range outputs {
		sum += b.weights[i] * v
	}
	return sum / b.total, nil
}
