package stochastic

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"chemsim/internal/model"
	"chemsim/internal/sim"
	"chemsim/internal/simerr"
)

const (
	DefaultLeapRelativeError = 0.005
	DefaultStepSizeFraction  = 0.1

	maxLeapAttempts = 40
)

// TauLeap fires many reactions per step, drawing each reaction's firing
// count from a Poisson distribution over a leap chosen so that no
// propensity is expected to change by more than a fraction of the total.
// When the chosen leap is too short to be worthwhile it falls back to a
// run of exact direct-method steps.
type TauLeap struct {
	sim.Base
}

func NewTauLeap(opts ...sim.Option) *TauLeap {
	return &TauLeap{Base: sim.NewBase(AliasTauLeap, true, opts...)}
}

func (s *TauLeap) DefaultParameters() sim.Parameters {
	p := defaultParameters()
	p.MaxAllowedRelativeError = sim.Float(DefaultLeapRelativeError)
	p.StepSizeFraction = sim.Float(DefaultStepSizeFraction)
	return p
}

// Initialize rejects models with reaction-local parameters, whose rates
// cannot be differentiated per species by the leap condition.
func (s *TauLeap) Initialize(m *model.Model) error {
	if m != nil {
		for _, r := range m.Reactions() {
			if len(r.LocalParameters()) > 0 {
				return simerr.InvalidInput("%s does not support local parameters (reaction %s)", s.Alias(), r.Name)
			}
		}
	}
	return s.Base.Initialize(m)
}

func (s *TauLeap) Simulate(ctx context.Context, req sim.Request) (*sim.Results, error) {
	params := req.Parameters.WithDefaults(s.DefaultParameters())
	eps, err := sim.RequireFloat("MaxAllowedRelativeError", params.MaxAllowedRelativeError)
	if err != nil {
		return nil, err
	}
	fraction, err := sim.RequireFloat("StepSizeFraction", params.StepSizeFraction)
	if err != nil {
		return nil, err
	}
	if !(eps > 0) || !(fraction > 0) {
		return nil, simerr.IllegalArgument("%s requires a positive relative error and step size fraction, got %g and %g", s.Alias(), eps, fraction)
	}
	run, err := begin(ctx, &s.Base, req, s.DefaultParameters())
	if err != nil {
		return nil, err
	}
	return runEnsemble(run, newLeaper(newEngine(s.Alias(), run.Net), eps, fraction))
}

type leaper struct {
	*engine
	eps       float64
	fraction  float64
	burst     int
	remaining int

	effective []float64
	deriv     [][]float64 // deriv[j][i]: change in rate j when species i gains one
	firings   []float64
	trial     []float64
}

func newLeaper(e *engine, eps, fraction float64) *leaper {
	nr, ns := len(e.net.Reactions), len(e.net.Dynamic)
	l := &leaper{
		engine:    e,
		eps:       eps,
		fraction:  fraction,
		burst:     int(4 / fraction),
		effective: make([]float64, nr),
		deriv:     make([][]float64, nr),
		firings:   make([]float64, nr),
		trial:     make([]float64, ns),
	}
	for j := range l.deriv {
		l.deriv[j] = make([]float64, ns)
	}
	return l
}

func (l *leaper) prepare(float64) error {
	l.remaining = 0
	return nil
}

func (l *leaper) step(run *sim.Run, t float64) (float64, error) {
	if l.remaining > 0 {
		l.remaining--
		return l.directStep(run, t)
	}
	a0, err := l.net.ComputeRates(l.rates)
	if err != nil {
		return t, err
	}
	if a0 == 0 {
		return l.directStep(run, t)
	}
	tau, err := l.leapSize(a0)
	if err != nil {
		return t, err
	}
	if tau < 1/(l.fraction*a0) {
		l.remaining = l.burst - 1
		run.Logger().Debug("tau-leap falling back to single steps", "alias", l.alias, "time", t, "tau", tau, "total_rate", a0)
		return l.directStep(run, t)
	}
	return l.leap(run, t, math.Min(tau, run.Sampler.Next()-t))
}

// rate is the propensity used by the leap condition. Delayed completions
// are counted at the average rate their intermediate pool will drain.
func (l *leaper) rate(j int) (float64, error) {
	if s := l.net.Reactions[j].Solver; s != nil {
		return s.EstimatedAverageFutureRate(l.net.Evaluator)
	}
	return l.net.ComputeRate(j)
}

// leapSize bounds the leap so that the expected change and the standard
// deviation of every propensity stay within eps of the total propensity,
// and so that no species is expected to lose more than half its population.
func (l *leaper) leapSize(a0 float64) (float64, error) {
	net := l.net
	total := a0
	for j, r := range net.Reactions {
		if r.Solver == nil {
			l.effective[j] = l.rates[j]
			continue
		}
		a, err := l.rate(j)
		if err != nil {
			return 0, err
		}
		l.effective[j] = a
		total += a
	}

	for i, orig := range net.Dynamic {
		net.Dynamic[i] = orig + 1
		net.ClearCaches()
		for j := range net.Reactions {
			a, err := l.rate(j)
			if err != nil {
				net.Dynamic[i] = orig
				net.ClearCaches()
				return 0, err
			}
			l.deriv[j][i] = a - l.effective[j]
		}
		net.Dynamic[i] = orig
	}
	net.ClearCaches()

	bound := l.eps * total
	tau := math.Inf(1)
	for j := range net.Reactions {
		var mu, sigma float64
		for k, r := range net.Reactions {
			a := l.effective[k]
			if a == 0 {
				continue
			}
			var f float64
			for _, c := range r.Changes {
				f += l.deriv[j][c.Index] * c.Amount
			}
			mu += f * a
			sigma += f * f * a
		}
		if mu != 0 {
			tau = math.Min(tau, bound/math.Abs(mu))
		}
		if sigma > 0 {
			tau = math.Min(tau, bound*bound/sigma)
		}
	}

	for i, x := range net.Dynamic {
		var drift float64
		for j, r := range net.Reactions {
			for _, c := range r.Changes {
				if c.Index == i {
					drift += c.Amount * l.effective[j]
				}
			}
		}
		if drift < 0 {
			tau = math.Min(tau, -0.5*x/drift)
		}
	}
	return tau, nil
}

func (l *leaper) draw(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	if 1/math.Sqrt(mean) > l.eps {
		return distuv.Poisson{Lambda: mean, Src: l.net.Rand}.Rand()
	}
	return math.Round(mean)
}

// leap fires every reaction a random number of times over [t, t+tau] and
// then applies the delayed completions that fell due. Leaps that would
// drive a population negative are redrawn over half the interval.
func (l *leaper) leap(run *sim.Run, t, tau float64) (float64, error) {
	net := l.net
	next := run.Sampler.Next()
	for attempt := 0; attempt < maxLeapAttempts; attempt++ {
		copy(l.trial, net.Dynamic)
		for j, r := range net.Reactions {
			l.firings[j] = 0
			if r.Solver != nil {
				continue
			}
			k := l.draw(l.rates[j] * tau)
			l.firings[j] = k
			for _, c := range r.Changes {
				l.trial[c.Index] += c.Amount * k
			}
		}
		if !nonNegative(l.trial) {
			tau /= 2
			continue
		}

		for j, k := range l.firings {
			if k > 0 {
				net.Fire(j, k, t)
			}
		}
		end := t + tau
		if tau >= next-t {
			end = next
		}
		for {
			s, when := net.NextDelayedEvent()
			if s == nil || when > end {
				break
			}
			s.PollNextReactionTime()
			net.Fire(net.HiddenReaction(s), 1, when)
		}
		net.Evaluator.SetTime(end)
		net.ClearCaches()
		for i := range net.Dynamic {
			if err := l.checkPrecision(i, end); err != nil {
				return end, err
			}
		}
		run.Metrics().AddLeaps(1)
		return end, run.Sampler.Record(end)
	}
	return t, simerr.Accuracy(l.alias, t, "no leap with non-negative populations after %d attempts", maxLeapAttempts)
}

func nonNegative(values []float64) bool {
	for _, v := range values {
		if v < 0 {
			return false
		}
	}
	return true
}
