// Package delay implements the solver behind delayed and multistep
// reactions. The reactant is converted immediately into a hidden intermediate
// species; the solver decides when the intermediate turns into product.
package delay

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"chemsim/internal/pqueue"
	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
	"chemsim/internal/timeseries"
)

const (
	// MinHistoryCapacity is the smallest number of samples kept per history
	// window in deterministic mode.
	MinHistoryCapacity = 4000
	MinHistoryBins     = 10
	DefaultHistoryBins = 400

	// history windows span this multiple of the delay
	windowSpan = 1.1
	// multistep windows reach this many kernel standard deviations past
	// the kernel mean
	kernelTail = 6
)

type Config struct {
	Reaction     string
	Reactant     *symbol.Symbol
	Intermediate *symbol.Symbol
	Rate         float64
	Delay        float64
	Multistep    bool
	Stochastic   bool
	HistoryBins  int
}

type queue interface {
	Len() int
	Push(t float64)
	Peek() (float64, bool)
	Pop() (float64, bool)
	Clear()
}

// Solver tracks in-flight completions for one delayed reaction. Stochastic
// solvers hold a queue of completion times; deterministic solvers hold a
// sliding history of the reactant used to compute the production rate.
type Solver struct {
	cfg        Config
	resolution float64

	// stochastic mode
	pending queue
	gamma   distuv.Gamma

	// deterministic mode
	reactantHistory     *timeseries.Window
	intermediateHistory *timeseries.Window
	first               bool
}

// New builds a solver. src supplies randomness for multistep completion
// times and may be nil for deterministic solvers.
func New(cfg Config, src rand.Source) (*Solver, error) {
	if !(cfg.Delay > 0) {
		return nil, simerr.IllegalArgument("reaction %s: delay must be positive, got %g", cfg.Reaction, cfg.Delay)
	}
	if !(cfg.Rate > 0) {
		return nil, simerr.IllegalArgument("reaction %s: rate must be positive, got %g", cfg.Reaction, cfg.Rate)
	}
	if cfg.Reactant == nil || cfg.Intermediate == nil {
		return nil, simerr.IllegalArgument("reaction %s: reactant and intermediate symbols are required", cfg.Reaction)
	}
	if cfg.HistoryBins == 0 {
		cfg.HistoryBins = DefaultHistoryBins
	}
	if cfg.HistoryBins < MinHistoryBins {
		return nil, simerr.IllegalArgument("reaction %s: history bins must be at least %d, got %d", cfg.Reaction, MinHistoryBins, cfg.HistoryBins)
	}

	s := &Solver{cfg: cfg, first: true}
	if cfg.Stochastic {
		if cfg.Multistep {
			if src == nil {
				return nil, simerr.IllegalArgument("reaction %s: multistep stochastic solver needs a random source", cfg.Reaction)
			}
			s.pending = pqueue.NewEventQueue(cfg.HistoryBins)
			s.gamma = distuv.Gamma{Alpha: cfg.Rate * cfg.Delay, Beta: cfg.Rate, Src: src}
		} else {
			s.pending = &pqueue.FIFO{}
		}
		return s, nil
	}

	capacity := max(MinHistoryCapacity, cfg.HistoryBins)
	span := windowSpan * cfg.Delay
	if cfg.Multistep {
		span = multistepSpan(cfg.Rate, cfg.Delay)
	}
	s.resolution = span / float64(capacity)
	var err error
	if s.reactantHistory, err = timeseries.NewWindow(capacity); err != nil {
		return nil, err
	}
	if s.intermediateHistory, err = timeseries.NewWindow(capacity); err != nil {
		return nil, err
	}
	return s, nil
}

// multistepSpan is the history length needed by the multistep kernel, a
// Gamma density with shape rate*delay+1 and the given rate.
func multistepSpan(rate, delay float64) float64 {
	shape := rate*delay + 1
	return (shape + kernelTail*math.Sqrt(shape)) / rate
}

func (s *Solver) Reaction() string                        { return s.cfg.Reaction }
func (s *Solver) Rate() float64                           { return s.cfg.Rate }
func (s *Solver) Delay() float64                          { return s.cfg.Delay }
func (s *Solver) IsMultistep() bool                       { return s.cfg.Multistep }
func (s *Solver) IsStochastic() bool                      { return s.cfg.Stochastic }
func (s *Solver) Reactant() *symbol.Symbol                { return s.cfg.Reactant }
func (s *Solver) Intermediate() *symbol.Symbol            { return s.cfg.Intermediate }
func (s *Solver) TimeResolution() float64                 { return s.resolution }
func (s *Solver) History() *timeseries.Window             { return s.reactantHistory }
func (s *Solver) IntermediateHistory() *timeseries.Window { return s.intermediateHistory }

// AddReactant schedules the completion of one molecule entering the
// intermediate pool at time now.
func (s *Solver) AddReactant(now float64) {
	rel := s.cfg.Delay
	if s.cfg.Multistep {
		rel = s.gamma.Rand()
	}
	s.pending.Push(now + rel)
}

func (s *Solver) CanHaveReaction() bool {
	return s.pending != nil && s.pending.Len() > 0
}

// PeekNextReactionTime returns the earliest pending completion time.
func (s *Solver) PeekNextReactionTime() (float64, bool) {
	if s.pending == nil {
		return 0, false
	}
	return s.pending.Peek()
}

// PollNextReactionTime removes and returns the earliest pending completion.
func (s *Solver) PollNextReactionTime() (float64, bool) {
	if s.pending == nil {
		return 0, false
	}
	return s.pending.Pop()
}

// NextTime is PeekNextReactionTime with +Inf standing in for an empty queue.
func (s *Solver) NextTime() float64 {
	if t, ok := s.PeekNextReactionTime(); ok {
		return t
	}
	return math.Inf(1)
}

// EstimatedAverageFutureRate approximates the production rate over the next
// delay as the intermediate pool spread evenly across it.
func (s *Solver) EstimatedAverageFutureRate(ev *symbol.Evaluator) (float64, error) {
	v, err := ev.Raw(s.cfg.Intermediate)
	if err != nil {
		return 0, err
	}
	return v / s.cfg.Delay, nil
}

func (s *Solver) Clear() {
	if s.pending != nil {
		s.pending.Clear()
	}
	if s.reactantHistory != nil {
		s.reactantHistory.Clear()
		s.intermediateHistory.Clear()
	}
	s.first = true
}

// Update records reactant history up to time t. Samples are spaced exactly
// one resolution apart so the history can be indexed arithmetically.
func (s *Solver) Update(ev *symbol.Evaluator, t float64) error {
	if s.cfg.Stochastic {
		return nil
	}
	if s.first {
		reactant, intermediate, err := s.current(ev)
		if err != nil {
			return err
		}
		s.reactantHistory.Insert(t, reactant)
		s.intermediateHistory.Insert(t, intermediate)
		s.first = false
		return nil
	}

	last := s.reactantHistory.LastTime()
	if t-last <= s.resolution {
		return nil
	}
	reactant, intermediate, err := s.current(ev)
	if err != nil {
		return err
	}
	for t-last > s.resolution {
		last += s.resolution
		s.reactantHistory.Insert(last, reactant)
		s.intermediateHistory.Insert(last, intermediate)
	}
	return nil
}

func (s *Solver) current(ev *symbol.Evaluator) (float64, float64, error) {
	reactant, err := ev.Raw(s.cfg.Reactant)
	if err != nil {
		return 0, 0, err
	}
	intermediate, err := ev.Raw(s.cfg.Intermediate)
	if err != nil {
		return 0, 0, err
	}
	return reactant, intermediate, nil
}

// ComputeRate returns the deterministic production rate of the product at
// the evaluator's current time. Stochastic solvers always return 0.
func (s *Solver) ComputeRate(ev *symbol.Evaluator) (float64, error) {
	if s.cfg.Stochastic || s.reactantHistory.Len() == 0 {
		return 0, nil
	}
	intermediate, err := ev.Raw(s.cfg.Intermediate)
	if err != nil {
		return 0, err
	}
	if intermediate <= 0 {
		return 0, nil
	}
	if s.cfg.Multistep {
		return s.multistepRate(ev.Time()), nil
	}
	return s.delayRate(ev.Time()), nil
}

// delayRate reads the reactant value exactly one delay in the past by linear
// interpolation over the history.
func (s *Solver) delayRate(now float64) float64 {
	h := s.reactantHistory
	peak := now - s.cfg.Delay
	minTime := h.MinTime()
	if peak < minTime {
		return 0
	}
	pos := (peak - minTime) / s.resolution
	idx := int(pos)
	if idx >= h.Len()-1 {
		return s.cfg.Rate * h.Value(h.Len()-1)
	}
	frac := pos - math.Floor(pos)
	left := h.Value(idx)
	value := left + frac*(h.Value(idx+1)-left)
	return s.cfg.Rate * value
}

// multistepRate integrates the reactant history against the Erlang kernel of
// an N-step chain with a composite Simpson rule.
func (s *Solver) multistepRate(now float64) float64 {
	h := s.reactantHistory
	rate := s.cfg.Rate
	n := rate * s.cfg.Delay
	norm := math.Sqrt(2 * math.Pi * n)
	rateSq := rate * rate
	last := h.Len() - 1

	var total float64
	for i := last; i >= 0; i-- {
		lambda := rate * (now - h.Time(i))
		kernel := rateSq * math.Pow(lambda*math.E/n, n) / (math.Exp(lambda) * norm)
		value := s.resolution * h.Value(i) * kernel
		switch {
		case i == 0 || i == last:
			total += value / 3
		case i%2 == 1:
			total += 4 * value / 3
		default:
			total += 2 * value / 3
		}
	}
	return total
}
