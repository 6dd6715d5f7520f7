package whatif

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"fcmsim/internal/ga"
	"fcmsim/internal/logging"
	"fcmsim/internal/telemetry"
)

var ErrInvalidConfig = errors.New("invalid what-if config")

type Config struct {
	Population  ga.Config
	Generations int
	Runs        int
	Seed        int64
	// Workers bounds concurrent runs; values <= 0 mean one worker per run.
	Workers int

	Evaluator ga.Evaluator
	Mutator   ga.Mutator
	Baseline  []float64
	Logger    *logging.Logger
	Metrics   *telemetry.Metrics
}

// RunResult is the immutable outcome of one independent search.
type RunResult struct {
	Run            int                  `json:"run"`
	Seed           int64                `json:"seed"`
	Best           *ga.Individual       `json:"best"`
	BestFitness    float64              `json:"best_fitness"`
	FitnessHistory []float64            `json:"fitness_history"`
	BestHistory    []float64            `json:"best_history"`
	History        []ga.GenerationStats `json:"history"`
	Generations    int                  `json:"generations"`
	Done           bool                 `json:"done"`
	Elapsed        time.Duration        `json:"elapsed"`
}

type Report struct {
	Runs     []RunResult `json:"runs"`
	Baseline []float64   `json:"baseline"`
	BestRun  int         `json:"best_run"`
	// Diff lists the gene positions where the best run departs from the
	// baseline.
	Diff []int `json:"diff"`
}

// Best returns the selected run.
func (r Report) Best() RunResult {
	return r.Runs[r.BestRun]
}

type Orchestrator struct {
	cfg Config
	log *logging.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Population.Validate(); err != nil {
		return nil, err
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	}
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("%w: runs must be > 0", ErrInvalidConfig)
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidConfig)
	}
	if cfg.Mutator == nil {
		return nil, fmt.Errorf("%w: mutator is required", ErrInvalidConfig)
	}
	if len(cfg.Baseline) == 0 {
		return nil, fmt.Errorf("%w: baseline gene vector is empty", ErrInvalidConfig)
	}
	if cfg.Workers <= 0 || cfg.Workers > cfg.Runs {
		cfg.Workers = cfg.Runs
	}
	cfg.Baseline = append([]float64(nil), cfg.Baseline...)
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{cfg: cfg, log: log}, nil
}

// Run executes the configured searches with seeds Seed, Seed+1, ... and
// picks the best run. The first failing run cancels the others.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	results := make([]RunResult, o.cfg.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for k := 0; k < o.cfg.Runs; k++ {
		k := k
		g.Go(func() error {
			res, err := o.runOne(gctx, k)
			if err != nil {
				return fmt.Errorf("run %d: %w", k, err)
			}
			results[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	best, diff := SelectBest(results, o.cfg.Baseline)
	o.log.Info("what-if complete",
		"runs", len(results),
		"best_run", best,
		"best_fitness", results[best].BestFitness,
		"changed_genes", len(diff),
	)
	return Report{
		Runs:     results,
		Baseline: append([]float64(nil), o.cfg.Baseline...),
		BestRun:  best,
		Diff:     diff,
	}, nil
}

func (o *Orchestrator) runOne(ctx context.Context, k int) (RunResult, error) {
	start := time.Now()
	seed := o.cfg.Seed + int64(k)
	log := o.log.With("run", k, "seed", seed)

	pop, err := ga.NewPopulation(o.cfg.Population, o.cfg.Evaluator, o.cfg.Mutator, o.cfg.Baseline, rand.New(rand.NewSource(seed)))
	if err != nil {
		return RunResult{}, err
	}
	generations := 0
	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			o.cfg.Metrics.ObserveRun(telemetry.OutcomeFailed, 0, time.Since(start))
			return RunResult{}, err
		}
		stats, err := pop.Grade(ctx, gen)
		if err != nil {
			o.cfg.Metrics.ObserveRun(telemetry.OutcomeFailed, 0, time.Since(start))
			return RunResult{}, err
		}
		generations++
		o.cfg.Metrics.ObserveGeneration(pop.Size())
		log.Debug("generation graded", "generation", gen, "mean_fitness", stats.MeanFitness, "best_fitness", stats.BestFitness)
		if pop.Done() || gen == o.cfg.Generations-1 {
			break
		}
		pop.Evolve()
	}

	best := pop.Best()
	bestFitness, _ := best.Fitness()
	res := RunResult{
		Run:            k,
		Seed:           seed,
		Best:           best,
		BestFitness:    bestFitness,
		FitnessHistory: pop.FitnessHistory(),
		BestHistory:    pop.BestHistory(),
		History:        pop.History(),
		Generations:    generations,
		Done:           pop.Done(),
		Elapsed:        time.Since(start),
	}
	outcome := telemetry.OutcomeCapped
	if res.Done {
		outcome = telemetry.OutcomeDone
	}
	o.cfg.Metrics.ObserveRun(outcome, bestFitness, res.Elapsed)
	log.Info("run finished", "generations", generations, "best_fitness", bestFitness, "done", res.Done)
	return res, nil
}

// SelectBest picks, among the runs with minimal best fitness, the one whose
// best individual changes the fewest baseline genes; remaining ties go to
// the lowest run index. It returns -1 for no runs.
func SelectBest(results []RunResult, baseline []float64) (int, []int) {
	best := -1
	var bestDiff []int
	for i, res := range results {
		if res.Best == nil {
			continue
		}
		diff := res.Best.Diff(baseline)
		if best < 0 {
			best, bestDiff = i, diff
			continue
		}
		cur := results[best].BestFitness
		switch {
		case res.BestFitness < cur:
			best, bestDiff = i, diff
		case res.BestFitness == cur && len(diff) < len(bestDiff):
			best, bestDiff = i, diff
		}
	}
	return best, bestDiff
}
