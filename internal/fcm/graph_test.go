package fcm

import (
	"errors"
	"math"
	"testing"
)

func identityGraph(n int, decay float64) Graph {
	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
		weights[i][i] = 1
	}
	return Graph{Name: "identity", Weights: weights, Decay: decay, ObjectiveIndex: 0}
}

func TestBuiltInSquashesStayInUnitInterval(t *testing.T) {
	for _, name := range ListSquashes() {
		fn, err := GetSquash(name)
		if err != nil {
			t.Fatalf("get squash %s: %v", name, err)
		}
		prev := math.Inf(-1)
		for x := -10.0; x <= 10.0; x += 0.25 {
			y := fn(x)
			if y < 0 || y > 1 {
				t.Fatalf("squash %s(%v)=%v outside [0,1]", name, x, y)
			}
			if y < prev {
				t.Fatalf("squash %s is not monotonic at %v", name, x)
			}
			prev = y
		}
	}
}

func TestSquashRegistry(t *testing.T) {
	t.Cleanup(resetSquashRegistryForTests)

	if _, err := GetSquash("step"); !errors.Is(err, ErrSquashNotFound) {
		t.Fatalf("expected ErrSquashNotFound, got %v", err)
	}
	if err := RegisterSquash("step", func(x float64) float64 {
		if x > 0.5 {
			return 1
		}
		return 0
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterSquash("step", func(float64) float64 { return 0 }); !errors.Is(err, ErrSquashExists) {
		t.Fatalf("expected ErrSquashExists, got %v", err)
	}
	fn, err := GetSquash("")
	if err != nil {
		t.Fatalf("default squash: %v", err)
	}
	if got := fn(0); got != 0.5 {
		t.Fatalf("expected sigmoid default, got %v", got)
	}
}

func TestStepAppliesDecayInertiaAndSteepness(t *testing.T) {
	g := Graph{
		Name:      "pair",
		Weights:   [][]float64{{0, 0.5}, {0, 0}},
		Decay:     0.5,
		Steepness: 2,
		Squash:    "saturate",
	}
	squash, _ := GetSquash(g.Squash)
	next := g.Step(squash, []float64{0.4, 0.2})
	// node 0: 2*(0.5*0 + 0.5*0.4) = 0.4
	// node 1: 2*(0.5*0.5*0.4 + 0.5*0.2) = 0.4
	if math.Abs(next[0]-0.4) > 1e-12 || math.Abs(next[1]-0.4) > 1e-12 {
		t.Fatalf("unexpected step result: %v", next)
	}
}

func TestStepZeroSteepnessUsesDefault(t *testing.T) {
	unset := Graph{Name: "pair", Weights: [][]float64{{0, 0.7}, {-0.3, 0}}, Decay: 0.8}
	explicit := unset
	explicit.Steepness = DefaultSteepness
	if err := unset.Validate(); err != nil {
		t.Fatalf("zero steepness should validate: %v", err)
	}
	squash, _ := GetSquash("")
	got := unset.Step(squash, []float64{0.6, 0.1})
	want := explicit.Step(squash, []float64{0.6, 0.1})
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("node %d: zero steepness gave %v, default gave %v", i, got[i], want[i])
		}
	}
}

func TestInferIdentityScenarioConverges(t *testing.T) {
	g := identityGraph(3, 0.8)
	opts := InferenceOptions{MaxIterations: 100, Threshold: 0.001}

	first, err := g.Infer([]float64{0.3, 0.3, 0.3}, opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if !first.Converged || first.Iterations >= 100 {
		t.Fatalf("expected convergence within cap: %+v", first)
	}
	if first.Delta >= 0.001 {
		t.Fatalf("expected final delta below threshold, got %v", first.Delta)
	}
	// sigmoid fixed point x = 1/(1+e^-x)
	for i, v := range first.Final {
		if math.Abs(v-0.659) > 0.002 {
			t.Fatalf("node %d did not settle near the sigmoid fixed point: %v", i, v)
		}
	}

	second, err := g.Infer([]float64{0.3, 0.3, 0.3}, opts)
	if err != nil {
		t.Fatalf("infer rerun: %v", err)
	}
	for i := range first.Final {
		if first.Final[i] != second.Final[i] {
			t.Fatalf("expected bit-identical reruns at %d: %v vs %v", i, first.Final[i], second.Final[i])
		}
	}
}

func TestInferAcceptsLastIterateAtCap(t *testing.T) {
	g := identityGraph(2, 0.5)
	res, err := g.Infer([]float64{0.0, 1.0}, InferenceOptions{MaxIterations: 2, Threshold: 1e-12})
	if err != nil {
		t.Fatalf("expected no error at iteration cap, got %v", err)
	}
	if res.Converged || res.Iterations != 2 {
		t.Fatalf("expected unconverged result after 2 iterations, got %+v", res)
	}
	if len(res.Final) != 2 {
		t.Fatalf("expected final vector, got %v", res.Final)
	}
}

func TestInferDoesNotAliasInitial(t *testing.T) {
	g := identityGraph(2, 0.5)
	initial := []float64{0.2, 0.4}
	if _, err := g.Infer(initial, InferenceOptions{}); err != nil {
		t.Fatalf("infer: %v", err)
	}
	if initial[0] != 0.2 || initial[1] != 0.4 {
		t.Fatalf("initial vector mutated: %v", initial)
	}
}

func TestGraphValidate(t *testing.T) {
	valid := identityGraph(2, 0.5)
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	cases := map[string]Graph{
		"empty":          {Name: "g", Decay: 0.5},
		"not square":     {Name: "g", Weights: [][]float64{{0, 1}, {0}}, Decay: 0.5},
		"weight range":   {Name: "g", Weights: [][]float64{{1.5}}, Decay: 0.5},
		"decay zero":     {Name: "g", Weights: [][]float64{{0}}, Decay: 0},
		"decay one":      {Name: "g", Weights: [][]float64{{0}}, Decay: 1},
		"objective":      {Name: "g", Weights: [][]float64{{0}}, Decay: 0.5, ObjectiveIndex: 1},
		"unknown squash": {Name: "g", Weights: [][]float64{{0}}, Decay: 0.5, Squash: "nope"},
		"neg steepness":  {Name: "g", Weights: [][]float64{{0}}, Decay: 0.5, Steepness: -1},
	}
	for name, g := range cases {
		if err := g.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}

	if _, err := valid.Infer([]float64{0.1}, InferenceOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected length mismatch configuration error, got %v", err)
	}
}

func TestSubgraphKeepsObjective(t *testing.T) {
	g := Graph{
		Name: "agg",
		Weights: [][]float64{
			{0, 0, 0},
			{0.5, 0, 0},
			{0.25, 0, 0},
		},
		Decay: 0.5,
	}
	sub, err := g.Subgraph([]int{0, 2})
	if err != nil {
		t.Fatalf("subgraph: %v", err)
	}
	if sub.Size() != 2 || sub.Weights[1][0] != 0.25 || sub.ObjectiveIndex != 0 {
		t.Fatalf("unexpected subgraph: %+v", sub)
	}
	if _, err := g.Subgraph([]int{1, 2}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected objective drop error, got %v", err)
	}
}
