package symbol

import (
	"chemsim/internal/simerr"
)

// PostProcessor adjusts a resolved species value before it is returned to a
// caller, for example to turn a population into a concentration.
type PostProcessor interface {
	Adjust(sym *Symbol, value float64, ev *Evaluator) (float64, error)
}

type PostProcessorFunc func(sym *Symbol, value float64, ev *Evaluator) (float64, error)

func (f PostProcessorFunc) Adjust(sym *Symbol, value float64, ev *Evaluator) (float64, error) {
	return f(sym, value, ev)
}

type Option func(*Evaluator)

func WithPostProcessor(p PostProcessor) Option {
	return func(e *Evaluator) {
		e.post = p
	}
}

// Evaluator resolves symbols against the dense value arrays owned by one
// simulator instance.
type Evaluator struct {
	time       float64
	symbols    map[string]*Symbol
	dynamic    []float64
	nonDynamic []Value
	post       PostProcessor
}

// NewEvaluator wraps the given arrays without copying them; the simulator keeps
// mutating dynamic in place.
func NewEvaluator(symbols map[string]*Symbol, dynamic []float64, nonDynamic []Value, opts ...Option) *Evaluator {
	e := &Evaluator{
		symbols:    symbols,
		dynamic:    dynamic,
		nonDynamic: nonDynamic,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Time() float64     { return e.time }
func (e *Evaluator) SetTime(t float64) { e.time = t }

func (e *Evaluator) Dynamic() []float64 { return e.dynamic }

func (e *Evaluator) Lookup(name string) (*Symbol, bool) {
	sym, ok := e.symbols[name]
	return sym, ok
}

// Resolve binds an unindexed symbol, consulting scope before the global
// symbol table.
func (e *Evaluator) Resolve(sym *Symbol, scope map[string]*Symbol) error {
	if sym.Indexed() {
		return nil
	}
	if kind, ok := Reserved(sym.name); ok {
		return sym.Bind(kind, -1)
	}
	if scope != nil {
		if target, ok := scope[sym.name]; ok {
			return sym.bindTo(target)
		}
	}
	target, ok := e.symbols[sym.name]
	if !ok {
		return simerr.DataNotFound("unknown symbol %q", sym.name)
	}
	return sym.bindTo(target)
}

// Value returns the current value of sym, memoizing its index on first use.
// Species values pass through the post-processor when one is installed.
func (e *Evaluator) Value(sym *Symbol) (float64, error) {
	value, err := e.Raw(sym)
	if err != nil || e.post == nil || !sym.indexesArray() {
		return value, err
	}
	return e.post.Adjust(sym, value, e)
}

// Raw is Value without post-processing.
func (e *Evaluator) Raw(sym *Symbol) (float64, error) {
	switch sym.kind {
	case KindTime:
		return e.time, nil
	case KindAvogadro:
		return Avogadro, nil
	case KindUnindexed:
		if err := e.Resolve(sym, nil); err != nil {
			return 0, err
		}
		return e.Raw(sym)
	case KindDynamic:
		if sym.index < 0 || sym.index >= len(e.dynamic) {
			return 0, simerr.DataNotFound("symbol %q index %d out of range", sym.name, sym.index)
		}
		return e.dynamic[sym.index], nil
	default:
		if sym.index < 0 || sym.index >= len(e.nonDynamic) {
			return 0, simerr.DataNotFound("symbol %q index %d out of range", sym.name, sym.index)
		}
		return e.nonDynamic[sym.index].Eval(e)
	}
}

// ValueOf resolves a symbol by name.
func (e *Evaluator) ValueOf(name string) (float64, error) {
	if kind, ok := Reserved(name); ok {
		return e.Raw(&Symbol{name: name, kind: kind, index: -1})
	}
	sym, ok := e.symbols[name]
	if !ok {
		return 0, simerr.DataNotFound("unknown symbol %q", name)
	}
	return e.Value(sym)
}

// ClearExpressionCaches invalidates every cached expression value.
func (e *Evaluator) ClearExpressionCaches() {
	for i := range e.nonDynamic {
		e.nonDynamic[i].ClearCache()
	}
}

// ConcentrationPostProcessor divides species values by the current value of
// their compartment. Tables are indexed by the species' array index; a nil
// entry leaves the value untouched.
type ConcentrationPostProcessor struct {
	DynamicCompartments    []*Symbol
	NonDynamicCompartments []*Symbol
}

func (p *ConcentrationPostProcessor) Adjust(sym *Symbol, value float64, ev *Evaluator) (float64, error) {
	var compartment *Symbol
	switch sym.kind {
	case KindDynamic:
		if sym.index < len(p.DynamicCompartments) {
			compartment = p.DynamicCompartments[sym.index]
		}
	case KindNonDynamic:
		if sym.index < len(p.NonDynamicCompartments) {
			compartment = p.NonDynamicCompartments[sym.index]
		}
	}
	if compartment == nil {
		return value, nil
	}
	volume, err := ev.Value(compartment)
	if err != nil {
		return 0, err
	}
	if volume == 0 {
		return 0, simerr.InvalidInput("compartment %q has zero volume", compartment.name)
	}
	return value / volume, nil
}
