package store

import (
	"context"

	"opsagent/internal/store/model"
)

// Store is the entry point for database access.
type Store interface {
	// Steps returns the decision step repository.
	Steps() StepRepository
	// Close closes the store connection.
	Close() error
}

// StepRepository persists the per-cycle decision log.
type StepRepository interface {
	InsertStep(ctx context.Context, step *model.DecisionStepModel) error
	// ListRecent returns the newest rows first. A limit <= 0 means no limit.
	ListRecent(ctx context.Context, limit int) ([]model.DecisionStepModel, error)
	// ListRun returns one run's rows in step order.
	ListRun(ctx context.Context, runID string) ([]model.DecisionStepModel, error)
	// ListRuns aggregates rows per run, newest run first.
	ListRuns(ctx context.Context, limit int) ([]model.RunSummaryModel, error)
}
