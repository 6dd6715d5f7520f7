package ga

import (
	"math/rand"

	"fcmsim/internal/fuzzy"
)

// Mutator raises a single gene value.
type Mutator interface {
	Name() string
	// Raise returns a value strictly greater than current, or false when no
	// such value exists.
	Raise(rng *rand.Rand, current float64) (float64, bool)
}

// ScaleMutator draws from the scale values above the absent term.
type ScaleMutator struct {
	values []float64
}

func NewScaleMutator(scale *fuzzy.Scale) ScaleMutator {
	return ScaleMutator{values: scale.MutationValues()}
}

func (ScaleMutator) Name() string {
	return "scale"
}

func (m ScaleMutator) Raise(rng *rand.Rand, current float64) (float64, bool) {
	return raiseFrom(rng, m.values, current)
}

// DecileMutator draws from the deciles 0.1 through 0.9 regardless of the
// scale in use.
type DecileMutator struct{}

var deciles = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

func (DecileMutator) Name() string {
	return "decile"
}

func (DecileMutator) Raise(rng *rand.Rand, current float64) (float64, bool) {
	return raiseFrom(rng, deciles, current)
}

// MutatorByName resolves the configured mutator kind.
func MutatorByName(name string, scale *fuzzy.Scale) (Mutator, error) {
	switch name {
	case "", "scale":
		return NewScaleMutator(scale), nil
	case "decile":
		return DecileMutator{}, nil
	default:
		return nil, &UnknownMutatorError{Name: name}
	}
}

type UnknownMutatorError struct {
	Name string
}

func (e *UnknownMutatorError) Error() string {
	return "unknown mutator: " + e.Name
}

func (e *UnknownMutatorError) Unwrap() error {
	return ErrInvalidConfig
}

func raiseFrom(rng *rand.Rand, values []float64, current float64) (float64, bool) {
	candidates := make([]float64, 0, len(values))
	for _, v := range values {
		if v > current {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return current, false
	}
	return candidates[rng.Intn(len(candidates))], true
}
