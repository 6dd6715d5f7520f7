package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const experimentsDir = "experiments"

// ExperimentCell is one what-if of a parameter sweep.
type ExperimentCell struct {
	Case          string  `json:"case"`
	CrossoverProb float64 `json:"crossover_prob"`
	Retain        int     `json:"retain"`
	RunID         string  `json:"run_id"`
	BestFitness   float64 `json:"best_fitness"`
	MeanGens      float64 `json:"mean_generations"`
	ChangedGenes  int     `json:"changed_genes"`
	ElapsedMS     int64   `json:"elapsed_ms"`
}

type Experiment struct {
	ID             string           `json:"id"`
	StartedAtUTC   string           `json:"started_at_utc,omitempty"`
	CompletedAtUTC string           `json:"completed_at_utc,omitempty"`
	Cells          []ExperimentCell `json:"cells"`
}

// WriteExperiment stores exp as experiments/<id>.json plus a CSV table.
func WriteExperiment(baseDir string, exp Experiment) (string, error) {
	if exp.ID == "" {
		return "", fmt.Errorf("experiment id is required")
	}
	dir := filepath.Join(baseDir, experimentsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, exp.ID+".json")
	if err := writeJSON(path, exp); err != nil {
		return "", err
	}
	if err := writeExperimentCSV(filepath.Join(dir, exp.ID+".csv"), exp.Cells); err != nil {
		return "", err
	}
	return path, nil
}

func ReadExperiment(baseDir, id string) (Experiment, bool, error) {
	if id == "" {
		return Experiment{}, false, fmt.Errorf("experiment id is required")
	}
	var exp Experiment
	ok, err := readJSON(filepath.Join(baseDir, experimentsDir, id+".json"), &exp)
	return exp, ok, err
}

func writeExperimentCSV(path string, cells []ExperimentCell) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"case", "crossover_prob", "retain", "run_id", "best_fitness", "mean_generations", "changed_genes", "elapsed_ms"}); err != nil {
		return err
	}
	for _, c := range cells {
		if err := writer.Write([]string{
			c.Case,
			strconv.FormatFloat(c.CrossoverProb, 'f', -1, 64),
			strconv.Itoa(c.Retain),
			c.RunID,
			strconv.FormatFloat(c.BestFitness, 'f', -1, 64),
			strconv.FormatFloat(c.MeanGens, 'f', 2, 64),
			strconv.Itoa(c.ChangedGenes),
			strconv.FormatInt(c.ElapsedMS, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
