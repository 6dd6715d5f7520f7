package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"fcmsim/internal/model"
)

const (
	runIndexFile      = "run_index.json"
	runFile           = "run.json"
	historyFile       = "fitness_history.json"
	historySeriesFile = "fitness_series.csv"
)

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Case         string  `json:"case"`
	Target       string  `json:"target"`
	Runs         int     `json:"runs"`
	BestRun      int     `json:"best_run"`
	BestFitness  float64 `json:"best_fitness"`
	ChangedGenes int     `json:"changed_genes"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// IndexEntry summarizes run for the run index.
func IndexEntry(run model.RunRecord) RunIndexEntry {
	return RunIndexEntry{
		RunID:        run.ID,
		Case:         run.Case,
		Target:       run.Target,
		Runs:         len(run.Runs),
		BestRun:      run.BestRun,
		BestFitness:  run.BestFitness,
		ChangedGenes: len(run.Diff),
		CreatedAtUTC: run.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// WriteRunArtifacts writes run.json, fitness_history.json and
// fitness_series.csv under baseDir/<run id>.
func WriteRunArtifacts(baseDir string, run model.RunRecord, history []model.FitnessHistory) (string, error) {
	if strings.TrimSpace(run.ID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runFile), run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, historyFile), history); err != nil {
		return "", err
	}
	if err := writeSeries(filepath.Join(runDir, historySeriesFile), history); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	var run model.RunRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, runFile), &run)
	return run, ok, err
}

func ReadFitnessHistory(baseDir, runID string) ([]model.FitnessHistory, bool, error) {
	var history []model.FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, historyFile), &history)
	return history, ok, err
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeSeries(path string, history []model.FitnessHistory) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"run", "generation", "mean_fitness", "best_fitness"}); err != nil {
		return err
	}
	for _, h := range history {
		for gen := range h.Mean {
			best := ""
			if gen < len(h.Best) {
				best = strconv.FormatFloat(h.Best[gen], 'f', -1, 64)
			}
			if err := writer.Write([]string{
				strconv.Itoa(h.Run),
				strconv.Itoa(gen),
				strconv.FormatFloat(h.Mean[gen], 'f', -1, 64),
				best,
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessSeries parses fitness_series.csv back into per-run histories.
func ReadFitnessSeries(baseDir, runID string) ([]model.FitnessHistory, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, historySeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.FitnessHistory{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("fitness series header must have 4 columns")
	}

	var out []model.FitnessHistory
	byRun := make(map[int]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 4 {
			return nil, false, fmt.Errorf("fitness series row must have 4 columns")
		}
		run, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		mean, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		idx, ok := byRun[run]
		if !ok {
			idx = len(out)
			byRun[run] = idx
			out = append(out, model.FitnessHistory{Run: run})
		}
		out[idx].Mean = append(out[idx].Mean, mean)
		if record[3] != "" {
			best, err := strconv.ParseFloat(record[3], 64)
			if err != nil {
				return nil, false, err
			}
			out[idx].Best = append(out[idx].Best, best)
		}
	}
	return out, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
