package fuzzy

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownTerm  = errors.New("unknown linguistic term")
	ErrInvalidScale = errors.New("invalid linguistic scale")
)

// Term is a named point on an ordered fuzzy scale.
type Term struct {
	Label string  `yaml:"label" json:"label"`
	Value float64 `yaml:"value" json:"value"`
}

// Scale maps linguistic terms to activation levels and back. A Scale is
// immutable after construction and safe for concurrent use.
type Scale struct {
	terms   []Term
	byLabel map[string]int
}

// DefaultScale returns the decile activation-level scale used by the
// maturity models. "NA" marks an absent concept.
func DefaultScale() *Scale {
	scale, err := NewScale([]Term{
		{Label: "NA", Value: 0.0},
		{Label: "VVL", Value: 0.1},
		{Label: "VL", Value: 0.2},
		{Label: "L", Value: 0.3},
		{Label: "ML", Value: 0.4},
		{Label: "M", Value: 0.5},
		{Label: "MH", Value: 0.6},
		{Label: "H", Value: 0.7},
		{Label: "VH", Value: 0.8},
		{Label: "VVH", Value: 0.9},
	})
	if err != nil {
		panic(err)
	}
	return scale
}

func NewScale(terms []Term) (*Scale, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: at least one term is required", ErrInvalidScale)
	}
	s := &Scale{
		terms:   make([]Term, len(terms)),
		byLabel: make(map[string]int, len(terms)),
	}
	for i, term := range terms {
		label := strings.TrimSpace(term.Label)
		if label == "" {
			return nil, fmt.Errorf("%w: empty label at index %d", ErrInvalidScale, i)
		}
		if math.IsNaN(term.Value) || term.Value < 0 || term.Value > 1 {
			return nil, fmt.Errorf("%w: term %s value %v outside [0,1]", ErrInvalidScale, label, term.Value)
		}
		if _, dup := s.byLabel[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %s", ErrInvalidScale, label)
		}
		if i > 0 && term.Value <= s.terms[i-1].Value {
			return nil, fmt.Errorf("%w: term %s value %v is not greater than %s", ErrInvalidScale, label, term.Value, s.terms[i-1].Label)
		}
		s.terms[i] = Term{Label: label, Value: term.Value}
		s.byLabel[label] = i
	}
	return s, nil
}

// LoadScale reads a YAML list of {label, value} entries.
func LoadScale(path string) (*Scale, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var terms []Term
	if err := yaml.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("decode scale %s: %w", path, err)
	}
	scale, err := NewScale(terms)
	if err != nil {
		return nil, fmt.Errorf("scale %s: %w", path, err)
	}
	return scale, nil
}

// ValueOf returns the activation level for label.
func (s *Scale) ValueOf(label string) (float64, error) {
	idx, ok := s.byLabel[strings.TrimSpace(label)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTerm, label)
	}
	return s.terms[idx].Value, nil
}

// TermOf defuzzifies value to the nearest term. Ties go to the lower term.
func (s *Scale) TermOf(value float64) Term {
	best := s.terms[0]
	bestDist := math.Abs(value - best.Value)
	for _, term := range s.terms[1:] {
		dist := math.Abs(value - term.Value)
		if dist < bestDist {
			best = term
			bestDist = dist
		}
	}
	return best
}

// Encode converts labels to activation levels, failing on the first unknown label.
func (s *Scale) Encode(labels []string) ([]float64, error) {
	out := make([]float64, len(labels))
	for i, label := range labels {
		v, err := s.ValueOf(label)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Scale) Decode(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = s.TermOf(v).Label
	}
	return out
}

func (s *Scale) Terms() []Term {
	return append([]Term(nil), s.terms...)
}

// Values returns the ordered scalar values of the scale.
func (s *Scale) Values() []float64 {
	out := make([]float64, len(s.terms))
	for i, term := range s.terms {
		out[i] = term.Value
	}
	return out
}

// MutationValues returns the values a gene may be raised to: every value
// except the lowest, which marks an absent concept.
func (s *Scale) MutationValues() []float64 {
	values := s.Values()
	if len(values) == 1 {
		return values
	}
	return values[1:]
}

func (s *Scale) Max() float64 {
	return s.terms[len(s.terms)-1].Value
}

func (s *Scale) Len() int {
	return len(s.terms)
}
