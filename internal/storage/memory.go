package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"fcmsim/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]model.FitnessHistory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]model.FitnessHistory)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []model.FitnessHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	copied := make([]model.FitnessHistory, len(history))
	for i, h := range history {
		h.Mean = append([]float64(nil), h.Mean...)
		h.Best = append([]float64(nil), h.Best...)
		copied[i] = h
	}
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]model.FitnessHistory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.FitnessHistory, len(history))
	for i, h := range history {
		h.Mean = append([]float64(nil), h.Mean...)
		h.Best = append([]float64(nil), h.Best...)
		copied[i] = h
	}
	return copied, true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Excluded = append([]string(nil), run.Excluded...)
	run.GeneLabels = append([]string(nil), run.GeneLabels...)
	run.Baseline = append([]float64(nil), run.Baseline...)
	run.BestGenes = append([]float64(nil), run.BestGenes...)
	run.BestTerms = append([]string(nil), run.BestTerms...)
	run.Diff = append([]int(nil), run.Diff...)
	if run.Runs != nil {
		runs := make([]model.RunSummary, len(run.Runs))
		for i, r := range run.Runs {
			r.Genes = append([]float64(nil), r.Genes...)
			runs[i] = r
		}
		run.Runs = runs
	}
	return run
}

func sortNewestFirst(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
