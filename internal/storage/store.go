package storage

import (
	"context"

	"fcmsim/internal/model"
)

// Store defines transaction-like persistence operations for what-if runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []model.FitnessHistory) error
	GetFitnessHistory(ctx context.Context, runID string) ([]model.FitnessHistory, bool, error)
}
