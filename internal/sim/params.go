package sim

import (
	"fmt"
	"strings"

	"chemsim/internal/delay"
	"chemsim/internal/model"
	"chemsim/internal/simerr"
)

// Parameters configures one Simulate call. Nil fields are unset; each
// simulator documents which fields it requires and DefaultParameters fills
// them in.
type Parameters struct {
	EnsembleSize            *int     `json:"ensemble_size,omitempty"`
	MinNumSteps             *int     `json:"min_num_steps,omitempty"`
	MaxAllowedRelativeError *float64 `json:"max_allowed_relative_error,omitempty"`
	MaxAllowedAbsoluteError *float64 `json:"max_allowed_absolute_error,omitempty"`
	StepSizeFraction        *float64 `json:"step_size_fraction,omitempty"`
	NumHistoryBins          *int     `json:"num_history_bins,omitempty"`
	Seed                    *uint64  `json:"seed,omitempty"`

	ComputeFluctuations bool `json:"compute_fluctuations,omitempty"`
	ConcentrationUnits  bool `json:"concentration_units,omitempty"`
}

func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }
func Uint64(v uint64) *uint64  { return &v }

// WithDefaults returns p with every unset field taken from d.
func (p Parameters) WithDefaults(d Parameters) Parameters {
	out := p
	if out.EnsembleSize == nil {
		out.EnsembleSize = d.EnsembleSize
	}
	if out.MinNumSteps == nil {
		out.MinNumSteps = d.MinNumSteps
	}
	if out.MaxAllowedRelativeError == nil {
		out.MaxAllowedRelativeError = d.MaxAllowedRelativeError
	}
	if out.MaxAllowedAbsoluteError == nil {
		out.MaxAllowedAbsoluteError = d.MaxAllowedAbsoluteError
	}
	if out.StepSizeFraction == nil {
		out.StepSizeFraction = d.StepSizeFraction
	}
	if out.NumHistoryBins == nil {
		out.NumHistoryBins = d.NumHistoryBins
	}
	if out.Seed == nil {
		out.Seed = d.Seed
	}
	return out
}

// Validate checks the ranges of the fields that are set.
func (p Parameters) Validate() error {
	var issues []string
	if p.EnsembleSize != nil && *p.EnsembleSize < 1 {
		issues = append(issues, fmt.Sprintf("ensemble size %d < 1", *p.EnsembleSize))
	}
	if p.MinNumSteps != nil && *p.MinNumSteps < 1 {
		issues = append(issues, fmt.Sprintf("min number of steps %d < 1", *p.MinNumSteps))
	}
	if p.MaxAllowedRelativeError != nil && !(*p.MaxAllowedRelativeError >= 0) {
		issues = append(issues, fmt.Sprintf("max allowed relative error %g < 0", *p.MaxAllowedRelativeError))
	}
	if p.MaxAllowedAbsoluteError != nil && !(*p.MaxAllowedAbsoluteError >= 0) {
		issues = append(issues, fmt.Sprintf("max allowed absolute error %g < 0", *p.MaxAllowedAbsoluteError))
	}
	if p.StepSizeFraction != nil && !(*p.StepSizeFraction > 0 && *p.StepSizeFraction <= 1) {
		issues = append(issues, fmt.Sprintf("step size fraction %g outside (0, 1]", *p.StepSizeFraction))
	}
	if p.NumHistoryBins != nil && *p.NumHistoryBins < delay.MinHistoryBins {
		issues = append(issues, fmt.Sprintf("number of history bins %d < %d", *p.NumHistoryBins, delay.MinHistoryBins))
	}
	if len(issues) > 0 {
		return simerr.IllegalArgument("invalid parameters: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Record converts the parameters to their ledger representation.
func (p Parameters) Record() model.RunParameters {
	var out model.RunParameters
	if p.EnsembleSize != nil {
		out.EnsembleSize = *p.EnsembleSize
	}
	if p.MinNumSteps != nil {
		out.MinNumSteps = *p.MinNumSteps
	}
	if p.MaxAllowedRelativeError != nil {
		out.MaxAllowedRelativeError = *p.MaxAllowedRelativeError
	}
	if p.MaxAllowedAbsoluteError != nil {
		out.MaxAllowedAbsoluteError = *p.MaxAllowedAbsoluteError
	}
	if p.StepSizeFraction != nil {
		out.StepSizeFraction = *p.StepSizeFraction
	}
	if p.NumHistoryBins != nil {
		out.NumHistoryBins = *p.NumHistoryBins
	}
	out.Seed = p.Seed
	return out
}

func RequireInt(name string, v *int) (int, error) {
	if v == nil {
		return 0, simerr.IllegalArgument("required parameter %s is not set", name)
	}
	return *v, nil
}

func RequireFloat(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, simerr.IllegalArgument("required parameter %s is not set", name)
	}
	return *v, nil
}
