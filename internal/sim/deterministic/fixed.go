package deterministic

import (
	"context"
	"math"

	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

// errors are checked by step doubling once every qcInterval steps
const qcInterval = 10

// Fixed integrates with a constant step of (end-start)/MinNumSteps, checking
// the step-doubling error periodically against the configured tolerances.
type Fixed struct {
	sim.Base
}

func NewFixed(opts ...sim.Option) *Fixed {
	return &Fixed{Base: sim.NewBase(AliasFixed, false, opts...)}
}

func (s *Fixed) DefaultParameters() sim.Parameters { return defaultParameters() }

func (s *Fixed) Simulate(ctx context.Context, req sim.Request) (*sim.Results, error) {
	params := req.Parameters.WithDefaults(s.DefaultParameters())
	minSteps, err := sim.RequireInt("MinNumSteps", params.MinNumSteps)
	if err != nil {
		return nil, err
	}
	run, err := s.Begin(ctx, req, s.DefaultParameters())
	if err != nil {
		return nil, err
	}

	g := newIntegrator(s.Alias(), run)
	span := req.End - req.Start
	g.stepSize = math.Min(span/float64(minSteps), span/float64(req.NumPoints))
	if len(run.Net.Solvers) > 0 {
		g.stepSize = math.Min(g.stepSize, delayCap(run.Net, *run.Params.NumHistoryBins))
	}
	if run.Params.MaxAllowedRelativeError != nil {
		g.maxRel = *run.Params.MaxAllowedRelativeError
	}
	if run.Params.MaxAllowedAbsoluteError != nil {
		g.maxAbs = *run.Params.MaxAllowedAbsoluteError
	}
	return integrate(run, g, g.fixedStep)
}

func (g *integrator) fixedStep(t, limit float64) (float64, error) {
	h := math.Min(g.stepSize, limit)
	copy(g.ysav, g.net.Dynamic)
	defer func() { g.iterations++ }()

	if g.iterations%qcInterval != 0 {
		if err := g.rk4Step(t, h, g.ysav, g.y1); err != nil {
			return 0, err
		}
		copy(g.net.Dynamic, g.y1)
		return h, nil
	}

	rel, abs, err := g.rkqc(t, h)
	if err != nil {
		return 0, err
	}
	if g.maxRel > 0 && rel > g.maxRel {
		return 0, simerr.Accuracy(g.alias, t, "relative error %g exceeds %g; increase MinNumSteps", rel, g.maxRel)
	}
	if g.maxAbs > 0 && abs > g.maxAbs {
		return 0, simerr.Accuracy(g.alias, t, "absolute error %g exceeds %g; increase MinNumSteps", abs, g.maxAbs)
	}
	copy(g.net.Dynamic, g.y2)
	return h, nil
}
