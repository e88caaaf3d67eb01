package stochastic

import (
	"context"

	"chemsim/internal/sim"
)

// Gillespie is the direct method: every event draws an exponential waiting
// time from the total propensity and picks the firing reaction in
// proportion to its propensity.
type Gillespie struct {
	sim.Base
}

func NewGillespie(opts ...sim.Option) *Gillespie {
	return &Gillespie{Base: sim.NewBase(AliasGillespie, true, opts...)}
}

func (s *Gillespie) DefaultParameters() sim.Parameters { return defaultParameters() }

func (s *Gillespie) Simulate(ctx context.Context, req sim.Request) (*sim.Results, error) {
	run, err := begin(ctx, &s.Base, req, s.DefaultParameters())
	if err != nil {
		return nil, err
	}
	return runEnsemble(run, directStepper{newEngine(s.Alias(), run.Net)})
}

type directStepper struct {
	*engine
}

func (d directStepper) prepare(float64) error { return nil }

func (d directStepper) step(run *sim.Run, t float64) (float64, error) {
	return d.directStep(run, t)
}
