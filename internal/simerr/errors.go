// Package simerr defines the error taxonomy shared by the simulation engine.
//
// Data errors wrap ErrDataNotFound or ErrInvalidInput, malformed calls wrap
// ErrIllegalArgument, and numerical instability is reported as *AccuracyError,
// which matches ErrAccuracy under errors.Is.
package simerr

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound    = errors.New("data not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrIllegalArgument = errors.New("illegal argument")
	ErrNotInitialized  = errors.New("simulator is not initialized")
	ErrAccuracy        = errors.New("simulation accuracy")
)

// AccuracyError reports that an integration or leap could not satisfy its
// error bounds.
type AccuracyError struct {
	Simulator string
	Time      float64
	Reason    string
}

func (e *AccuracyError) Error() string {
	if e.Simulator == "" {
		return fmt.Sprintf("simulation accuracy at t=%g: %s", e.Time, e.Reason)
	}
	return fmt.Sprintf("%s: simulation accuracy at t=%g: %s", e.Simulator, e.Time, e.Reason)
}

func (e *AccuracyError) Is(target error) bool {
	return target == ErrAccuracy
}

func Accuracy(simulator string, time float64, format string, args ...any) error {
	return &AccuracyError{Simulator: simulator, Time: time, Reason: fmt.Sprintf(format, args...)}
}

func DataNotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataNotFound, fmt.Sprintf(format, args...))
}

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func IllegalArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalArgument, fmt.Sprintf(format, args...))
}
