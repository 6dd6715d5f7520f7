package fcm

import (
	"fmt"
)

// SubMap pairs a graph with its case baseline: one activation level per
// node, objective included.
type SubMap struct {
	Graph    Graph
	Baseline []float64
}

type SolverConfig struct {
	SubMaps   []SubMap
	Excluded  []string
	Combiner  Combiner
	Inference InferenceOptions
}

// GeneRef locates one gene inside the sub-map layout.
type GeneRef struct {
	SubMap      string `json:"sub_map"`
	SubMapIndex int    `json:"sub_map_index"`
	Node        int    `json:"node"`
}

type SubMapResult struct {
	Name   string
	Output float64
	Result Result
}

type Evaluation struct {
	Output  float64
	SubMaps []SubMapResult
}

// Solver evaluates gene vectors against an immutable set of sub-maps. It
// holds no mutable state and is safe for concurrent use.
type Solver struct {
	subMaps   []SubMap
	names     []string
	included  []int
	excluded  map[string]bool
	layout    []GeneRef
	offsets   []int
	combiner  BoundCombiner
	inference InferenceOptions
}

func NewSolver(cfg SolverConfig) (*Solver, error) {
	if len(cfg.SubMaps) == 0 {
		return nil, fmt.Errorf("%w: at least one sub-map is required", ErrConfiguration)
	}
	names := make([]string, len(cfg.SubMaps))
	seen := make(map[string]bool, len(cfg.SubMaps))
	subMaps := make([]SubMap, len(cfg.SubMaps))
	for i, sm := range cfg.SubMaps {
		if sm.Graph.Name == "" {
			return nil, fmt.Errorf("%w: sub-map %d has no name", ErrConfiguration, i)
		}
		if seen[sm.Graph.Name] {
			return nil, fmt.Errorf("%w: duplicate sub-map name %q", ErrConfiguration, sm.Graph.Name)
		}
		seen[sm.Graph.Name] = true
		if err := sm.Graph.Validate(); err != nil {
			return nil, err
		}
		if len(sm.Baseline) != sm.Graph.Size() {
			return nil, fmt.Errorf("%w: sub-map %q baseline has %d values, want %d", ErrConfiguration, sm.Graph.Name, len(sm.Baseline), sm.Graph.Size())
		}
		for j, v := range sm.Baseline {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("%w: sub-map %q baseline[%d]=%v outside [0,1]", ErrConfiguration, sm.Graph.Name, j, v)
			}
		}
		names[i] = sm.Graph.Name
		subMaps[i] = SubMap{Graph: sm.Graph, Baseline: append([]float64(nil), sm.Baseline...)}
	}

	excluded := make(map[string]bool, len(cfg.Excluded))
	for _, name := range cfg.Excluded {
		if !seen[name] {
			return nil, fmt.Errorf("%w: excluded sub-map %q does not exist", ErrConfiguration, name)
		}
		excluded[name] = true
	}

	s := &Solver{
		subMaps:   subMaps,
		names:     names,
		excluded:  excluded,
		offsets:   make([]int, len(subMaps)),
		inference: cfg.Inference.withDefaults(),
	}
	for i, sm := range subMaps {
		s.offsets[i] = -1
		if excluded[sm.Graph.Name] {
			continue
		}
		s.included = append(s.included, i)
		s.offsets[i] = len(s.layout)
		for node := 0; node < sm.Graph.Size(); node++ {
			if node == sm.Graph.ObjectiveIndex {
				continue
			}
			s.layout = append(s.layout, GeneRef{SubMap: sm.Graph.Name, SubMapIndex: i, Node: node})
		}
	}
	if len(s.included) == 0 {
		return nil, fmt.Errorf("%w: every sub-map is excluded", ErrConfiguration)
	}

	combiner := cfg.Combiner
	if combiner == nil {
		combiner = MeanCombiner{}
	}
	bound, err := combiner.Bind(names, s.included)
	if err != nil {
		return nil, err
	}
	s.combiner = bound
	return s, nil
}

// IndividualSize is the gene-vector length: the non-objective node count
// over every included sub-map.
func (s *Solver) IndividualSize() int {
	return len(s.layout)
}

func (s *Solver) Layout() []GeneRef {
	return append([]GeneRef(nil), s.layout...)
}

func (s *Solver) Included() []string {
	out := make([]string, 0, len(s.included))
	for _, idx := range s.included {
		out = append(out, s.names[idx])
	}
	return out
}

// BaselineGenes returns the case baseline laid out as a gene vector.
func (s *Solver) BaselineGenes() []float64 {
	genes := make([]float64, len(s.layout))
	for i, ref := range s.layout {
		genes[i] = s.subMaps[ref.SubMapIndex].Baseline[ref.Node]
	}
	return genes
}

// Run returns the combined converged objective for genes.
func (s *Solver) Run(genes []float64) (float64, error) {
	eval, err := s.Evaluate(genes)
	if err != nil {
		return 0, err
	}
	return eval.Output, nil
}

func (s *Solver) Evaluate(genes []float64) (Evaluation, error) {
	if len(genes) != len(s.layout) {
		return Evaluation{}, fmt.Errorf("%w: gene vector has %d values, want %d", ErrConfiguration, len(genes), len(s.layout))
	}
	results := make([]SubMapResult, 0, len(s.included))
	outputs := make([]float64, 0, len(s.included))
	for _, idx := range s.included {
		sm := s.subMaps[idx]
		initial := append([]float64(nil), sm.Baseline...)
		pos := s.offsets[idx]
		for node := range initial {
			if node == sm.Graph.ObjectiveIndex {
				continue
			}
			initial[node] = genes[pos]
			pos++
		}
		res, err := sm.Graph.Infer(initial, s.inference)
		if err != nil {
			return Evaluation{}, err
		}
		out := res.Final[sm.Graph.ObjectiveIndex]
		outputs = append(outputs, out)
		results = append(results, SubMapResult{Name: sm.Graph.Name, Output: out, Result: res})
	}
	combined, err := s.combiner.Combine(outputs, s.inference)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Output: combined, SubMaps: results}, nil
}
