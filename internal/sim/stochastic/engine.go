// Package stochastic implements exact and approximate discrete stochastic
// simulation: Gillespie's direct method, the Gibson-Bruck next reaction
// method and a simple tau-leap. Every Simulate call runs an ensemble of
// independent realizations and reports their mean.
package stochastic

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"chemsim/internal/delay"
	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

const (
	AliasGillespie   = "gillespie-direct"
	AliasGibsonBruck = "gibson-bruck"
	AliasTauLeap     = "tauleap-simple"

	DefaultEnsembleSize = 1
)

func init() {
	sim.MustRegister(AliasGillespie, func(opts ...sim.Option) sim.Simulator { return NewGillespie(opts...) })
	sim.MustRegister(AliasGibsonBruck, func(opts ...sim.Option) sim.Simulator { return NewGibsonBruck(opts...) })
	sim.MustRegister(AliasTauLeap, func(opts ...sim.Option) sim.Simulator { return NewTauLeap(opts...) })
}

func defaultParameters() sim.Parameters {
	return sim.Parameters{
		EnsembleSize:   sim.Int(DefaultEnsembleSize),
		NumHistoryBins: sim.Int(delay.DefaultHistoryBins),
	}
}

// begin validates the ensemble parameters and starts the run.
func begin(ctx context.Context, base *sim.Base, req sim.Request, defaults sim.Parameters) (*sim.Run, error) {
	params := req.Parameters.WithDefaults(defaults)
	size, err := sim.RequireInt("EnsembleSize", params.EnsembleSize)
	if err != nil {
		return nil, err
	}
	if params.ComputeFluctuations && size < 2 {
		return nil, simerr.IllegalArgument("computing fluctuations requires an ensemble size greater than one, got %d", size)
	}
	return base.Begin(ctx, req, defaults)
}

// stepper advances one realization by one event or leap from time t and
// records every output time it passes.
type stepper interface {
	prepare(t float64) error
	step(run *sim.Run, t float64) (float64, error)
}

// engine holds the state shared by the stochastic algorithms.
type engine struct {
	net   *sim.Network
	alias string
	rates []float64
}

func newEngine(alias string, net *sim.Network) *engine {
	return &engine{
		net:   net,
		alias: alias,
		rates: make([]float64, len(net.Reactions)),
	}
}

// uniform draws from (0, 1].
func (e *engine) uniform() float64 { return 1 - e.net.Rand.Float64() }

func (e *engine) waitingTime(rate float64) float64 {
	return distuv.Exponential{Rate: rate, Src: e.net.Rand}.Rand()
}

// fire applies n firings of reaction j and moves the clock to t.
func (e *engine) fire(j int, n, t float64) error {
	e.net.Fire(j, n, t)
	e.net.Evaluator.SetTime(t)
	e.net.ClearCaches()
	for _, c := range e.net.Reactions[j].Changes {
		if err := e.checkPrecision(c.Index, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) checkPrecision(i int, t float64) error {
	if v := e.net.Dynamic[i]; v > 1 && v-1 == v {
		return simerr.Accuracy(e.alias, t, "population of %s exceeds the exactly representable integer range", e.net.DynamicNames[i])
	}
	return nil
}

// fireDelayed completes one pending delayed reaction of s at time when.
func (e *engine) fireDelayed(run *sim.Run, s *delay.Solver, when float64) (float64, error) {
	if err := run.Sampler.Record(when); err != nil {
		return when, err
	}
	if run.Sampler.Done() {
		return when, nil
	}
	s.PollNextReactionTime()
	return when, e.fire(e.net.HiddenReaction(s), 1, when)
}

// directStep performs one event of Gillespie's direct method from time t.
func (e *engine) directStep(run *sim.Run, t float64) (float64, error) {
	a0, err := e.net.ComputeRates(e.rates)
	if err != nil {
		return t, err
	}
	next := math.Inf(1)
	if a0 > 0 {
		next = t + e.waitingTime(a0)
	}
	if s, when := e.net.NextDelayedEvent(); s != nil && when <= next {
		return e.fireDelayed(run, s, when)
	}

	// output times before the event see the pre-event state
	if err := run.Sampler.Record(next); err != nil {
		return next, err
	}
	if run.Sampler.Done() {
		return next, nil
	}
	j := chooseReaction(e.rates, a0, e.uniform())
	return next, e.fire(j, 1, next)
}

// chooseReaction scans from the last reaction down until the running sum of
// rates reaches u·a0.
func chooseReaction(rates []float64, a0, u float64) int {
	target := u * a0
	var sum float64
	last := -1
	for j := len(rates) - 1; j >= 0; j-- {
		if rates[j] <= 0 {
			continue
		}
		last = j
		sum += rates[j]
		if sum >= target {
			return j
		}
	}
	return last
}

// runEnsemble runs every realization of the ensemble and accumulates their
// samples.
func runEnsemble(run *sim.Run, s stepper) (*sim.Results, error) {
	net := run.Net
	for m := 0; m < run.Members(); m++ {
		t := run.Start()
		if err := net.Reset(t); err != nil {
			return run.Finish(err)
		}
		if err := net.Integerize(); err != nil {
			return run.Finish(err)
		}
		run.BeginMember(m)
		if err := s.prepare(t); err != nil {
			return run.Finish(err)
		}
		for !run.Sampler.Done() {
			if run.Tick(t) {
				break
			}
			var err error
			if t, err = s.step(run, t); err != nil {
				return run.Finish(err)
			}
		}
		if run.Cancelled() {
			break
		}
		run.EndMember()
	}
	return run.Finish(nil)
}
