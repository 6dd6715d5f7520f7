package ga

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
)

// DoneThreshold ends a run once the mean or the best fitness drops below it.
const DoneThreshold = 0.03

var ErrInvalidConfig = errors.New("invalid population config")

type Config struct {
	Size          int
	CrossoverProb float64
	// Retain is the percentage of the graded population kept as parents.
	Retain int
	Target float64
}

func (c Config) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("%w: size must be >= 1", ErrInvalidConfig)
	}
	if c.Retain < 0 || c.Retain > 100 {
		return fmt.Errorf("%w: retain must be in [0,100]", ErrInvalidConfig)
	}
	if c.CrossoverProb < 0 || c.CrossoverProb > 1 {
		return fmt.Errorf("%w: crossover probability must be in [0,1]", ErrInvalidConfig)
	}
	if c.Target < 0 || c.Target > 1 {
		return fmt.Errorf("%w: target must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}

type GenerationStats struct {
	Generation  int     `json:"generation"`
	MeanFitness float64 `json:"mean_fitness"`
	BestFitness float64 `json:"best_fitness"`
}

// Population is owned by a single run and is not safe for concurrent use.
type Population struct {
	cfg       Config
	evaluator Evaluator
	mutator   Mutator
	rng       *rand.Rand

	individuals []*Individual
	parents     []*Individual
	elite       []*Individual
	history     []GenerationStats
	done        bool
	nextID      int
}

// NewPopulation seeds cfg.Size copies of baseline.
func NewPopulation(cfg Config, evaluator Evaluator, mutator Mutator, baseline []float64, rng *rand.Rand) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidConfig)
	}
	if mutator == nil {
		return nil, fmt.Errorf("%w: mutator is required", ErrInvalidConfig)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidConfig)
	}
	if len(baseline) == 0 {
		return nil, fmt.Errorf("%w: baseline gene vector is empty", ErrInvalidConfig)
	}
	p := &Population{
		cfg:       cfg,
		evaluator: evaluator,
		mutator:   mutator,
		rng:       rng,
	}
	p.individuals = make([]*Individual, cfg.Size)
	for i := range p.individuals {
		p.individuals[i] = p.newIndividual(baseline)
	}
	return p, nil
}

func (p *Population) newIndividual(genes []float64) *Individual {
	id := strconv.Itoa(p.nextID)
	p.nextID++
	return NewIndividual(id, genes, p.cfg.Target)
}

// Grade evaluates every individual, records the generation statistics and
// sorts the population by ascending fitness.
func (p *Population) Grade(ctx context.Context, generation int) (GenerationStats, error) {
	total := 0.0
	for _, ind := range p.individuals {
		if err := ctx.Err(); err != nil {
			return GenerationStats{}, err
		}
		fitness, err := ind.Grade(p.evaluator)
		if err != nil {
			return GenerationStats{}, fmt.Errorf("grade individual %s: %w", ind.ID, err)
		}
		total += fitness
	}
	sort.SliceStable(p.individuals, func(i, j int) bool {
		return p.individuals[i].fitness < p.individuals[j].fitness
	})

	stats := GenerationStats{
		Generation:  generation,
		MeanFitness: roundFitness(total / float64(len(p.individuals))),
		BestFitness: p.individuals[0].fitness,
	}
	p.history = append(p.history, stats)
	if stats.MeanFitness < DoneThreshold || stats.BestFitness < DoneThreshold {
		p.done = true
	}
	return stats, nil
}

// Select keeps the first floor(retain% * len) graded individuals as parents
// and deep-copies them as the elite.
func (p *Population) Select() {
	n := p.cfg.Retain * len(p.individuals) / 100
	p.parents = append([]*Individual(nil), p.individuals[:n]...)
	p.elite = make([]*Individual, n)
	for i, parent := range p.parents {
		p.elite[i] = parent.Clone()
	}
}

// Crossover rebuilds the population from the elite plus one-point children
// of random parent pairs. A failed trial adds nothing and the loop draws
// again. With a zero crossover probability every slot gets a parent copy.
// Without parents it leaves the population as is.
func (p *Population) Crossover() {
	if len(p.parents) == 0 {
		return
	}
	children := make([]*Individual, 0, p.cfg.Size+1)
	children = append(children, p.elite...)
	for len(children) < p.cfg.Size {
		father := p.parents[p.rng.Intn(len(p.parents))]
		if p.cfg.CrossoverProb == 0 {
			children = append(children, p.newIndividual(father.Genes))
			continue
		}
		mother := p.parents[p.rng.Intn(len(p.parents))]
		for mother == father && len(p.parents) > 1 {
			mother = p.parents[p.rng.Intn(len(p.parents))]
		}
		if p.rng.Float64() >= p.cfg.CrossoverProb {
			continue
		}
		point := p.rng.Intn(len(father.Genes))
		children = append(children,
			p.newIndividual(splice(father.Genes, mother.Genes, point)),
			p.newIndividual(splice(mother.Genes, father.Genes, point)),
		)
	}
	p.individuals = children[:p.cfg.Size]
}

func splice(head, tail []float64, point int) []float64 {
	out := make([]float64, 0, len(head))
	out = append(out, head[:point]...)
	return append(out, tail[point:]...)
}

// Mutate raises one minimal gene of every non-elite individual.
func (p *Population) Mutate() {
	elite := make(map[*Individual]bool, len(p.elite))
	for _, ind := range p.elite {
		elite[ind] = true
	}
	for _, ind := range p.individuals {
		if elite[ind] {
			continue
		}
		p.mutateOne(ind)
	}
}

func (p *Population) mutateOne(ind *Individual) bool {
	minimum := ind.Genes[0]
	for _, v := range ind.Genes[1:] {
		if v < minimum {
			minimum = v
		}
	}
	var tied []int
	for i, v := range ind.Genes {
		if v == minimum {
			tied = append(tied, i)
		}
	}
	pos := tied[p.rng.Intn(len(tied))]
	next, ok := p.mutator.Raise(p.rng, minimum)
	if !ok {
		return false
	}
	ind.setGene(pos, next)
	return true
}

// Evolve produces the next generation: Select, Crossover, Mutate.
func (p *Population) Evolve() {
	p.Select()
	p.Crossover()
	p.Mutate()
	p.parents = nil
	p.elite = nil
}

func (p *Population) Done() bool {
	return p.done
}

func (p *Population) Size() int {
	return len(p.individuals)
}

func (p *Population) Individuals() []*Individual {
	return append([]*Individual(nil), p.individuals...)
}

// Best returns a deep copy of the first individual; it is the fittest
// after Grade.
func (p *Population) Best() *Individual {
	return p.individuals[0].Clone()
}

func (p *Population) History() []GenerationStats {
	return append([]GenerationStats(nil), p.history...)
}

// FitnessHistory is the mean fitness per graded generation.
func (p *Population) FitnessHistory() []float64 {
	out := make([]float64, len(p.history))
	for i, s := range p.history {
		out[i] = s.MeanFitness
	}
	return out
}

// BestHistory is the best fitness per graded generation.
func (p *Population) BestHistory() []float64 {
	out := make([]float64, len(p.history))
	for i, s := range p.history {
		out[i] = s.BestFitness
	}
	return out
}
