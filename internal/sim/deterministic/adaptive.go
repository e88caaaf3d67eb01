package deterministic

import (
	"context"
	"math"

	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

const (
	safety     = 0.9
	pGrow      = -0.2
	pShrink    = -0.25
	errCon     = 6e-4
	maxRetries = 100
	maxGrowth  = 4
)

// Adaptive integrates with step-doubling error control, shrinking rejected
// steps and growing accepted ones up to (end-start)/MinNumSteps.
type Adaptive struct {
	sim.Base
}

func NewAdaptive(opts ...sim.Option) *Adaptive {
	return &Adaptive{Base: sim.NewBase(AliasAdaptive, false, opts...)}
}

func (s *Adaptive) DefaultParameters() sim.Parameters { return defaultParameters() }

func (s *Adaptive) Simulate(ctx context.Context, req sim.Request) (*sim.Results, error) {
	params := req.Parameters.WithDefaults(s.DefaultParameters())
	minSteps, err := sim.RequireInt("MinNumSteps", params.MinNumSteps)
	if err != nil {
		return nil, err
	}
	maxRel, err := sim.RequireFloat("MaxAllowedRelativeError", params.MaxAllowedRelativeError)
	if err != nil {
		return nil, err
	}
	maxAbs, err := sim.RequireFloat("MaxAllowedAbsoluteError", params.MaxAllowedAbsoluteError)
	if err != nil {
		return nil, err
	}
	if !(maxRel > 0) || !(maxAbs > 0) {
		return nil, simerr.IllegalArgument("%s requires positive error tolerances, got relative %g and absolute %g", s.Alias(), maxRel, maxAbs)
	}
	run, err := s.Begin(ctx, req, s.DefaultParameters())
	if err != nil {
		return nil, err
	}

	g := newIntegrator(s.Alias(), run)
	g.maxRel, g.maxAbs = maxRel, maxAbs
	g.maxStepSize = (req.End - req.Start) / float64(minSteps)
	if len(run.Net.Solvers) > 0 {
		g.maxStepSize = math.Min(g.maxStepSize, delayCap(run.Net, *run.Params.NumHistoryBins))
	}
	g.stepSize = g.maxStepSize / 5
	return integrate(run, g, g.adaptiveStep)
}

func (g *integrator) adaptiveStep(t, limit float64) (float64, error) {
	copy(g.ysav, g.net.Dynamic)
	h := math.Min(g.stepSize, limit)
	clipped := h < g.stepSize

	var ratio float64
	retries := 0
	for {
		rel, abs, err := g.rkqc(t, h)
		if err != nil {
			return 0, err
		}
		ratio = math.Max(rel/g.maxRel, abs/g.maxAbs)
		if !finite(ratio) {
			return 0, simerr.Accuracy(g.alias, t, "error estimate is not finite")
		}
		if ratio <= 1 {
			break
		}
		retries++
		g.logger.Debug("adaptive step rejected", "alias", g.alias, "time", t, "step", h, "error_ratio", ratio)
		if retries > maxRetries {
			g.metrics.AddRejections(retries)
			return 0, simerr.Accuracy(g.alias, t, "maximum number of step subdivisions exceeded; the model may be too stiff for this integrator")
		}
		h *= safety * math.Pow(ratio, pShrink)
	}
	g.metrics.AddRejections(retries)
	copy(g.net.Dynamic, g.y2)
	g.iterations++

	next := maxGrowth * h
	if ratio > errCon {
		next = safety * h * math.Pow(ratio, pGrow)
	}
	next = math.Min(next, g.maxStepSize)
	// steps clipped to an output time keep the running step size
	if !clipped || retries > 0 {
		g.stepSize = next
	}
	return h, nil
}
