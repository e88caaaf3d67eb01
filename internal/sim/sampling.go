package sim

import (
	"math"

	"chemsim/internal/symbol"
)

// Sampler records requested symbol values at the output times. A time point
// is filled once simulation time reaches it. Across an ensemble the recorded
// rows are summed and Mean divides each row by the members that reached it.
type Sampler struct {
	net     *Network
	times   []float64
	symbols []*symbol.Symbol

	sums   [][]float64
	counts []int
	next   int

	final  []float64
	finals [][]float64
}

func NewSampler(net *Network, times []float64, symbols []*symbol.Symbol) *Sampler {
	s := &Sampler{
		net:     net,
		times:   times,
		symbols: symbols,
		sums:    make([][]float64, len(times)),
		counts:  make([]int, len(times)),
		final:   make([]float64, len(symbols)),
	}
	for i := range s.sums {
		s.sums[i] = make([]float64, len(symbols))
	}
	return s
}

// Begin starts recording a new ensemble member.
func (s *Sampler) Begin() { s.next = 0 }

func (s *Sampler) Done() bool                { return s.next >= len(s.times) }
func (s *Sampler) Symbols() []*symbol.Symbol { return s.symbols }

// Next is the next unfilled output time, or +Inf once all are filled.
func (s *Sampler) Next() float64 {
	if s.Done() {
		return math.Inf(1)
	}
	return s.times[s.next]
}

// Record fills every output time at or before t with the current state.
func (s *Sampler) Record(t float64) error {
	for s.next < len(s.times) && t >= s.times[s.next] {
		if err := s.snapshot(s.next); err != nil {
			return err
		}
		s.next++
	}
	return nil
}

// Fill records the current state at every remaining output time.
func (s *Sampler) Fill() error {
	return s.Record(math.Inf(1))
}

func (s *Sampler) snapshot(i int) error {
	ev := s.net.Evaluator
	now := ev.Time()
	ev.SetTime(s.times[i])
	s.net.ClearCaches()
	defer func() {
		ev.SetTime(now)
		s.net.ClearCaches()
	}()

	row := s.sums[i]
	last := i == len(s.times)-1
	for k, sym := range s.symbols {
		v, err := ev.Value(sym)
		if err != nil {
			return err
		}
		row[k] += v
		if last {
			s.final[k] = v
		}
	}
	s.counts[i]++
	return nil
}

// EndMember keeps the member's final row for the fluctuation estimate when
// the member reached the end time.
func (s *Sampler) EndMember() {
	if s.Done() {
		s.finals = append(s.finals, append([]float64(nil), s.final...))
	}
}

// Filled is the number of leading time points recorded by at least one
// member.
func (s *Sampler) Filled() int {
	n := 0
	for n < len(s.counts) && s.counts[n] > 0 {
		n++
	}
	return n
}

// Members returns how many ensemble members reached each output time.
func (s *Sampler) Members() []int { return append([]int(nil), s.counts...) }

// Mean returns the ensemble-averaged rows.
func (s *Sampler) Mean() [][]float64 {
	out := make([][]float64, len(s.sums))
	for i, row := range s.sums {
		out[i] = make([]float64, len(row))
		if s.counts[i] == 0 {
			continue
		}
		inv := 1 / float64(s.counts[i])
		for k, v := range row {
			out[i][k] = v * inv
		}
	}
	return out
}

// Fluctuations is the sample standard deviation of each symbol's final
// value over the completed members, or nil with fewer than two.
func (s *Sampler) Fluctuations() []float64 {
	n := len(s.finals)
	if n < 2 {
		return nil
	}
	out := make([]float64, len(s.symbols))
	for k := range out {
		var mean float64
		for _, row := range s.finals {
			mean += row[k]
		}
		mean /= float64(n)
		var ss float64
		for _, row := range s.finals {
			d := row[k] - mean
			ss += d * d
		}
		out[k] = math.Sqrt(ss / float64(n-1))
	}
	return out
}
