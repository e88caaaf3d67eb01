package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the ledger entry for one simulate call.
type RunRecord struct {
	VersionedRecord
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Network    string             `json:"network"`
	Simulator  string             `json:"simulator"`
	Parameters RunParameters      `json:"parameters"`
	Start      float64            `json:"start"`
	End        float64            `json:"end"`
	NumPoints  int                `json:"num_points"`
	Status     RunStatus          `json:"status"`
	Error      string             `json:"error,omitempty"`
	Iterations int64              `json:"iterations"`
	Duration   time.Duration      `json:"duration"`
	Final      map[string]float64 `json:"final,omitempty"`
	// Fluctuations holds per-symbol standard deviations when they were
	// requested.
	Fluctuations map[string]float64 `json:"fluctuations,omitempty"`
}

// RunParameters mirrors the simulator parameters actually used by a run.
type RunParameters struct {
	EnsembleSize            int     `json:"ensemble_size,omitempty"`
	MinNumSteps             int     `json:"min_num_steps,omitempty"`
	MaxAllowedRelativeError float64 `json:"max_allowed_relative_error,omitempty"`
	MaxAllowedAbsoluteError float64 `json:"max_allowed_absolute_error,omitempty"`
	StepSizeFraction        float64 `json:"step_size_fraction,omitempty"`
	NumHistoryBins          int     `json:"num_history_bins,omitempty"`
	Seed                    *uint64 `json:"seed,omitempty"`
}
