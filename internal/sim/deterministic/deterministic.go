// Package deterministic integrates the mass-action rate equations with
// fourth-order Runge-Kutta steps, either at a fixed step size or with
// step-doubling error control.
package deterministic

import (
	"errors"
	"math"

	"chemsim/internal/delay"
	"chemsim/internal/sim"
	"chemsim/internal/steadystate"
	"chemsim/internal/symbol"
)

const (
	AliasFixed    = "ODE-RK5-fixed"
	AliasAdaptive = "ODE-RK5-adaptive"

	DefaultMinNumSteps             = 10000
	DefaultMaxAllowedRelativeError = 1e-4
	DefaultMaxAllowedAbsoluteError = 0.01
)

func init() {
	sim.MustRegister(AliasFixed, func(opts ...sim.Option) sim.Simulator { return NewFixed(opts...) })
	sim.MustRegister(AliasAdaptive, func(opts ...sim.Option) sim.Simulator { return NewAdaptive(opts...) })
}

func defaultParameters() sim.Parameters {
	return sim.Parameters{
		MinNumSteps:             sim.Int(DefaultMinNumSteps),
		MaxAllowedRelativeError: sim.Float(DefaultMaxAllowedRelativeError),
		MaxAllowedAbsoluteError: sim.Float(DefaultMaxAllowedAbsoluteError),
		NumHistoryBins:          sim.Int(delay.DefaultHistoryBins),
	}
}

// delayCap bounds the step size so that every delayed reaction's history is
// sampled at least bins times per delay.
func delayCap(net *sim.Network, bins int) float64 {
	return net.MinDelay() / float64(bins)
}

// fluctuations estimates the steady-state standard deviation of each
// requested symbol from the final state. Non-species symbols get zero, and
// an unstable state yields nil.
func fluctuations(run *sim.Run) []float64 {
	est, err := steadystate.Analyze(run.Net)
	if err != nil {
		if errors.Is(err, steadystate.ErrUnstable) {
			run.Logger().Debug("no fluctuation estimate", "err", err)
		} else {
			run.Logger().Warn("fluctuation estimate failed", "err", err)
		}
		return nil
	}
	syms := run.Sampler.Symbols()
	out := make([]float64, len(syms))
	for k, sym := range syms {
		if sym.Kind() == symbol.KindDynamic {
			out[k] = est.Fluctuations[sym.Index()]
		}
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
