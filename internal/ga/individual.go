package ga

import (
	"math"
)

// Evaluator maps a gene vector to the combined converged objective.
// *fcm.Solver satisfies it.
type Evaluator interface {
	Run(genes []float64) (float64, error)
}

// Individual is one candidate initial state for the included sub-maps.
type Individual struct {
	ID     string
	Genes  []float64
	Target float64

	fitness float64
	graded  bool
}

func NewIndividual(id string, genes []float64, target float64) *Individual {
	return &Individual{
		ID:     id,
		Genes:  append([]float64(nil), genes...),
		Target: target,
	}
}

// Grade runs ev on the genes and caches round(|target - output|, 3).
func (ind *Individual) Grade(ev Evaluator) (float64, error) {
	out, err := ev.Run(ind.Genes)
	if err != nil {
		return 0, err
	}
	ind.fitness = roundFitness(math.Abs(ind.Target - out))
	ind.graded = true
	return ind.fitness, nil
}

// Fitness returns the cached fitness and whether the genes have been graded
// since they last changed.
func (ind *Individual) Fitness() (float64, bool) {
	return ind.fitness, ind.graded
}

func (ind *Individual) setGene(i int, v float64) {
	ind.Genes[i] = v
	ind.graded = false
	ind.fitness = 0
}

func (ind *Individual) Clone() *Individual {
	clone := *ind
	clone.Genes = append([]float64(nil), ind.Genes...)
	return &clone
}

// Diff lists the gene positions where ind differs from baseline.
func (ind *Individual) Diff(baseline []float64) []int {
	var out []int
	for i, v := range ind.Genes {
		if i >= len(baseline) || v != baseline[i] {
			out = append(out, i)
		}
	}
	return out
}

func roundFitness(v float64) float64 {
	return math.Round(v*1000) / 1000
}
