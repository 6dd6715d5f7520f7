package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunParameters are the GA knobs a what-if was executed with.
type RunParameters struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	Runs           int     `json:"runs"`
	CrossoverProb  float64 `json:"crossover_prob"`
	Retain         int     `json:"retain"`
	Seed           int64   `json:"seed"`
	Mutator        string  `json:"mutator"`
	Combiner       string  `json:"combiner"`
}

// RunRecord is one persisted what-if analysis.
type RunRecord struct {
	VersionedRecord
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	ModelDir    string        `json:"model_dir"`
	Case        string        `json:"case"`
	Target      string        `json:"target"`
	TargetValue float64       `json:"target_value"`
	Excluded    []string      `json:"excluded,omitempty"`
	Parameters  RunParameters `json:"parameters"`
	GeneLabels  []string      `json:"gene_labels,omitempty"`
	Baseline    []float64     `json:"baseline"`
	BestRun     int           `json:"best_run"`
	BestFitness float64       `json:"best_fitness"`
	BestGenes   []float64     `json:"best_genes"`
	BestTerms   []string      `json:"best_terms"`
	Diff        []int         `json:"diff"`
	Runs        []RunSummary  `json:"runs"`
}

type RunSummary struct {
	Run         int       `json:"run"`
	Seed        int64     `json:"seed"`
	BestFitness float64   `json:"best_fitness"`
	Generations int       `json:"generations"`
	Done        bool      `json:"done"`
	Genes       []float64 `json:"genes"`
	ElapsedMS   int64     `json:"elapsed_ms"`
}

// FitnessHistory is the per-generation trace of one GA run.
type FitnessHistory struct {
	VersionedRecord
	Run  int       `json:"run"`
	Mean []float64 `json:"mean"`
	Best []float64 `json:"best"`
}
