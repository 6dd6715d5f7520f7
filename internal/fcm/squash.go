package fcm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const DefaultSquash = "sigmoid"

var (
	ErrSquashExists   = errors.New("squash function already registered")
	ErrSquashNotFound = errors.New("squash function not found")
)

// SquashFunc bounds a weighted node input to an activation level in [0,1].
// Implementations must be monotonic non-decreasing.
type SquashFunc func(x float64) float64

var squashRegistry = struct {
	mu sync.RWMutex
	m  map[string]SquashFunc
}{
	m: make(map[string]SquashFunc),
}

func init() {
	initializeBuiltInSquashes()
}

func initializeBuiltInSquashes() {
	MustRegisterSquash("sigmoid", func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
	MustRegisterSquash("tanh", func(x float64) float64 {
		return math.Max(0, math.Tanh(x))
	})
	MustRegisterSquash("saturate", func(x float64) float64 {
		return math.Min(1, math.Max(0, x))
	})
}

func RegisterSquash(name string, fn SquashFunc) error {
	if name == "" {
		return errors.New("squash name is required")
	}
	if fn == nil {
		return errors.New("squash function is required")
	}

	squashRegistry.mu.Lock()
	defer squashRegistry.mu.Unlock()

	if _, exists := squashRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSquashExists, name)
	}
	squashRegistry.m[name] = fn
	return nil
}

func MustRegisterSquash(name string, fn SquashFunc) {
	if err := RegisterSquash(name, fn); err != nil {
		panic(err)
	}
}

// GetSquash resolves name, treating the empty name as DefaultSquash.
func GetSquash(name string) (SquashFunc, error) {
	if name == "" {
		name = DefaultSquash
	}
	squashRegistry.mu.RLock()
	fn, ok := squashRegistry.m[name]
	squashRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSquashNotFound, name)
	}
	return fn, nil
}

func ListSquashes() []string {
	squashRegistry.mu.RLock()
	defer squashRegistry.mu.RUnlock()

	names := make([]string, 0, len(squashRegistry.m))
	for name := range squashRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetSquashRegistryForTests() {
	squashRegistry.mu.Lock()
	squashRegistry.m = make(map[string]SquashFunc)
	squashRegistry.mu.Unlock()
	initializeBuiltInSquashes()
}
