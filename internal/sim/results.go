package sim

import (
	"time"

	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
)

// Request describes one Simulate call. An empty Symbols list requests every
// floating species of the model.
type Request struct {
	Start      float64
	End        float64
	NumPoints  int
	Symbols    []string
	Parameters Parameters

	Controller *Controller
	Progress   ProgressReporter
}

// Results is the output of a Simulate call. Values is time-major:
// Values[i][k] is Symbols[k] at Times[i].
type Results struct {
	Simulator  string
	Start      float64
	End        float64
	Parameters Parameters
	Symbols    []string
	Times      []float64
	Values     [][]float64

	// Fluctuations holds the standard deviation of each symbol's final
	// value, or nil when it was not requested or could not be estimated.
	Fluctuations []float64

	// Members[i] is the number of ensemble members averaged into Values[i].
	// Cancelled ensembles can have fewer members at later time points.
	Members []int

	CreatedAt    time.Time
	Cancelled    bool
	FilledPoints int
	Iterations   int64
}

// Series returns the filled values of one symbol over time.
func (r *Results) Series(name string) ([]float64, error) {
	k := r.symbolIndex(name)
	if k < 0 {
		return nil, simerr.DataNotFound("symbol %q is not in the results", name)
	}
	out := make([]float64, r.FilledPoints)
	for i := range out {
		out[i] = r.Values[i][k]
	}
	return out, nil
}

// Final returns each symbol's value at the last filled time point.
func (r *Results) Final() map[string]float64 {
	out := make(map[string]float64, len(r.Symbols))
	if r.FilledPoints == 0 {
		return out
	}
	row := r.Values[r.FilledPoints-1]
	for k, name := range r.Symbols {
		out[name] = row[k]
	}
	return out
}

// FluctuationMap returns Fluctuations keyed by symbol name, or nil.
func (r *Results) FluctuationMap() map[string]float64 {
	if r.Fluctuations == nil {
		return nil
	}
	out := make(map[string]float64, len(r.Symbols))
	for k, name := range r.Symbols {
		out[name] = r.Fluctuations[k]
	}
	return out
}

func (r *Results) symbolIndex(name string) int {
	for k, s := range r.Symbols {
		if s == name {
			return k
		}
	}
	return -1
}

// TimesArray returns n evenly spaced output times from start to end.
func TimesArray(start, end float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = end
	return out
}

// CheckRequest validates req against an initialized network and returns the
// effective parameters and the resolved output symbols. It mutates nothing.
func CheckRequest(net *Network, req Request, defaults Parameters) (Parameters, []string, []*symbol.Symbol, error) {
	if net == nil {
		return Parameters{}, nil, nil, simerr.ErrNotInitialized
	}
	if req.NumPoints < 2 {
		return Parameters{}, nil, nil, simerr.IllegalArgument("number of time points must be at least 2, got %d", req.NumPoints)
	}
	if !(req.Start < req.End) {
		return Parameters{}, nil, nil, simerr.IllegalArgument("start time %g must be before end time %g", req.Start, req.End)
	}

	names := req.Symbols
	if len(names) == 0 {
		for _, sp := range net.Model.Species() {
			if !sp.Boundary {
				names = append(names, sp.Name)
			}
		}
	}
	syms := make([]*symbol.Symbol, 0, len(names))
	for _, name := range names {
		sym, err := net.Lookup(name)
		if err != nil {
			return Parameters{}, nil, nil, err
		}
		syms = append(syms, sym)
	}

	params := req.Parameters.WithDefaults(defaults)
	if err := params.Validate(); err != nil {
		return Parameters{}, nil, nil, err
	}
	return params, append([]string(nil), names...), syms, nil
}
