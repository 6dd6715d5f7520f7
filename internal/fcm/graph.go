package fcm

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultMaxIterations = 100
	DefaultThreshold     = 0.001
	DefaultSteepness     = 1.0
)

// ErrConfiguration marks a malformed model: it is raised while building a
// solver and is never recoverable mid-run.
var ErrConfiguration = errors.New("fcm configuration error")

// Graph is one weighted sub-map. Weights[i][j] is the causal influence of
// node i on node j.
type Graph struct {
	Name           string
	Weights        [][]float64
	Decay          float64
	// Steepness scales the squash input; zero means DefaultSteepness.
	Steepness      float64
	ObjectiveIndex int
	Squash         string
}

type InferenceOptions struct {
	MaxIterations int
	Threshold     float64
}

func (o InferenceOptions) withDefaults() InferenceOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Result is the outcome of one inference loop. Reaching the iteration cap
// is not an error: Converged is false and Final holds the last iterate.
type Result struct {
	Final      []float64
	Iterations int
	Converged  bool
	Delta      float64
}

func (g Graph) Size() int {
	return len(g.Weights)
}

func (g Graph) Validate() error {
	n := len(g.Weights)
	if n == 0 {
		return fmt.Errorf("%w: graph %q has no nodes", ErrConfiguration, g.Name)
	}
	for i, row := range g.Weights {
		if len(row) != n {
			return fmt.Errorf("%w: graph %q weight row %d has %d columns, want %d", ErrConfiguration, g.Name, i, len(row), n)
		}
		for j, w := range row {
			if math.IsNaN(w) || w < -1 || w > 1 {
				return fmt.Errorf("%w: graph %q weight[%d][%d]=%v outside [-1,1]", ErrConfiguration, g.Name, i, j, w)
			}
		}
	}
	if g.Decay <= 0 || g.Decay >= 1 {
		return fmt.Errorf("%w: graph %q decay %v outside (0,1)", ErrConfiguration, g.Name, g.Decay)
	}
	if g.Steepness < 0 {
		return fmt.Errorf("%w: graph %q steepness must be >= 0", ErrConfiguration, g.Name)
	}
	if g.ObjectiveIndex < 0 || g.ObjectiveIndex >= n {
		return fmt.Errorf("%w: graph %q objective index %d out of range [0,%d)", ErrConfiguration, g.Name, g.ObjectiveIndex, n)
	}
	if _, err := GetSquash(g.Squash); err != nil {
		return fmt.Errorf("%w: graph %q: %v", ErrConfiguration, g.Name, err)
	}
	return nil
}

// Step computes one synchronous update:
//
//	A'[j] = squash(steepness * (decay*sum_i W[i][j]*A[i] + (1-decay)*A[j]))
func (g Graph) Step(squash SquashFunc, current []float64) []float64 {
	steepness := g.Steepness
	if steepness == 0 {
		steepness = DefaultSteepness
	}
	next := make([]float64, len(current))
	for j := range current {
		sum := 0.0
		for i, a := range current {
			sum += g.Weights[i][j] * a
		}
		next[j] = squash(steepness * (g.Decay*sum + (1-g.Decay)*current[j]))
	}
	return next
}

// Infer iterates Step from initial until the L2 change between iterates
// drops below the threshold or the iteration cap is reached.
func (g Graph) Infer(initial []float64, opts InferenceOptions) (Result, error) {
	if len(initial) != g.Size() {
		return Result{}, fmt.Errorf("%w: graph %q initial vector has %d values, want %d", ErrConfiguration, g.Name, len(initial), g.Size())
	}
	squash, err := GetSquash(g.Squash)
	if err != nil {
		return Result{}, fmt.Errorf("%w: graph %q: %v", ErrConfiguration, g.Name, err)
	}
	opts = opts.withDefaults()

	current := append([]float64(nil), initial...)
	res := Result{Delta: math.Inf(1)}
	for t := 0; t < opts.MaxIterations; t++ {
		next := g.Step(squash, current)
		res.Delta = distance(next, current)
		res.Iterations = t + 1
		current = next
		if res.Delta < opts.Threshold {
			res.Converged = true
			break
		}
	}
	res.Final = current
	return res, nil
}

// Subgraph keeps only the listed node indexes, in order. The objective
// must be among them.
func (g Graph) Subgraph(keep []int) (Graph, error) {
	objective := -1
	weights := make([][]float64, len(keep))
	for a, i := range keep {
		if i < 0 || i >= g.Size() {
			return Graph{}, fmt.Errorf("%w: graph %q node %d out of range", ErrConfiguration, g.Name, i)
		}
		if i == g.ObjectiveIndex {
			objective = a
		}
		weights[a] = make([]float64, len(keep))
		for b, j := range keep {
			weights[a][b] = g.Weights[i][j]
		}
	}
	if objective < 0 {
		return Graph{}, fmt.Errorf("%w: graph %q subgraph drops the objective node", ErrConfiguration, g.Name)
	}
	out := g
	out.Weights = weights
	out.ObjectiveIndex = objective
	return out, nil
}

func distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
