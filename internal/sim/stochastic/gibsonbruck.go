package stochastic

import (
	"context"
	"math"

	"chemsim/internal/model"
	"chemsim/internal/pqueue"
	"chemsim/internal/sim"
)

// GibsonBruck is the next reaction method. Each reaction keeps a putative
// firing time in an indexed priority queue, and after an event only the
// reactions whose propensity may have changed are recomputed, rescaling
// their pending times rather than redrawing them.
type GibsonBruck struct {
	sim.Base
	graph *dependencyGraph
}

func NewGibsonBruck(opts ...sim.Option) *GibsonBruck {
	return &GibsonBruck{Base: sim.NewBase(AliasGibsonBruck, true, opts...)}
}

func (s *GibsonBruck) DefaultParameters() sim.Parameters { return defaultParameters() }

func (s *GibsonBruck) Initialize(m *model.Model) error {
	if err := s.Base.Initialize(m); err != nil {
		return err
	}
	s.graph = buildDependencyGraph(s.Network(), false)
	return nil
}

func (s *GibsonBruck) Simulate(ctx context.Context, req sim.Request) (*sim.Results, error) {
	run, err := begin(ctx, &s.Base, req, s.DefaultParameters())
	if err != nil {
		return nil, err
	}
	// compartment volumes join the dependencies in concentration units
	if s.graph == nil || s.graph.concentration != run.Params.ConcentrationUnits {
		s.graph = buildDependencyGraph(run.Net, run.Params.ConcentrationUnits)
	}
	return runEnsemble(run, &nextReactionStepper{
		engine: newEngine(s.Alias(), run.Net),
		graph:  s.graph,
	})
}

// dependencyGraph maps each reaction to the reactions whose propensity must
// be recomputed after it fires. Reactions that read time appear in every
// list.
type dependencyGraph struct {
	concentration bool
	dependents    [][]int
}

func buildDependencyGraph(net *sim.Network, concentration bool) *dependencyGraph {
	readers := make(map[int][]int)
	var timeDependent []int
	for j := range net.Reactions {
		species, usesTime := net.RateDependencies(j)
		for _, i := range species {
			readers[i] = append(readers[i], j)
		}
		if usesTime {
			timeDependent = append(timeDependent, j)
		}
	}

	g := &dependencyGraph{
		concentration: concentration,
		dependents:    make([][]int, len(net.Reactions)),
	}
	for j, r := range net.Reactions {
		seen := make(map[int]struct{})
		add := func(k int) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				g.dependents[j] = append(g.dependents[j], k)
			}
		}
		for _, p := range append(append([]sim.Participant(nil), r.Reactants...), r.Products...) {
			if !p.Dynamic {
				continue
			}
			for _, k := range readers[p.Symbol.Index()] {
				add(k)
			}
		}
		for _, k := range timeDependent {
			add(k)
		}
	}
	return g
}

type nextReactionStepper struct {
	*engine
	graph *dependencyGraph
	queue *pqueue.Indexed[float64]
}

func (s *nextReactionStepper) prepare(t float64) error {
	if _, err := s.net.ComputeRates(s.rates); err != nil {
		return err
	}
	times := make([]float64, len(s.rates))
	for j, a := range s.rates {
		times[j] = s.putative(t, a)
	}
	s.queue = pqueue.NewIndexed(times)
	return nil
}

func (s *nextReactionStepper) putative(t, rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return t + s.waitingTime(rate)
}

func (s *nextReactionStepper) step(run *sim.Run, t float64) (float64, error) {
	fired, when, ok := s.queue.Min()
	if !ok {
		when = math.Inf(1)
	}
	delayed := false
	if solver, td := s.net.NextDelayedEvent(); solver != nil && td <= when {
		fired, when, delayed = s.net.HiddenReaction(solver), td, true
		if err := run.Sampler.Record(when); err != nil {
			return when, err
		}
		if run.Sampler.Done() {
			return when, nil
		}
		solver.PollNextReactionTime()
	} else {
		if err := run.Sampler.Record(when); err != nil {
			return when, err
		}
		if run.Sampler.Done() {
			return when, nil
		}
	}
	if err := s.fire(fired, 1, when); err != nil {
		return when, err
	}

	if !delayed {
		rate, err := s.net.ComputeRate(fired)
		if err != nil {
			return when, err
		}
		s.rates[fired] = rate
		s.queue.Update(fired, s.putative(when, rate))
	}
	for _, k := range s.graph.dependents[fired] {
		if k == fired && !delayed {
			continue
		}
		rate, err := s.net.ComputeRate(k)
		if err != nil {
			return when, err
		}
		old, pending := s.rates[k], s.queue.Key(k)
		var next float64
		switch {
		case rate <= 0:
			next = math.Inf(1)
		case old > 0 && !math.IsInf(pending, 1):
			next = when + (pending-when)*old/rate
		default:
			next = s.putative(when, rate)
		}
		s.rates[k] = rate
		s.queue.Update(k, next)
	}
	return when, nil
}
