// Package storage keeps the run ledger: one versioned record per simulate
// call, with its parameters, outcome and final-state summary.
package storage

import (
	"context"

	"chemsim/internal/model"
)

// Store defines the ledger persistence operations.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns records newest first. A limit of zero or less
	// returns all of them.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
}
