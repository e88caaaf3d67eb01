package sim

import (
	"math"

	"chemsim/internal/delay"
	"chemsim/internal/symbol"
)

// SpeciesRateFactorEvaluator turns a reactant population and stoichiometry
// into the factor it contributes to a mass-action rate.
type SpeciesRateFactorEvaluator interface {
	RateFactor(population float64, stoichiometry int) float64
}

// Combinatoric counts the distinct ways to pick stoichiometry molecules out
// of population: n(n-1)...(n-s+1)/s!, and 0 when n < s.
type Combinatoric struct{}

func (Combinatoric) RateFactor(population float64, stoichiometry int) float64 {
	if population < float64(stoichiometry) {
		return 0
	}
	if stoichiometry == 1 {
		return population
	}
	factor := 1.0
	for i := 0; i < stoichiometry; i++ {
		factor *= (population - float64(i)) / float64(i+1)
	}
	return factor
}

// MassAction is the deterministic law n^s.
type MassAction struct{}

func (MassAction) RateFactor(population float64, stoichiometry int) float64 {
	if stoichiometry == 1 {
		return population
	}
	return math.Pow(population, float64(stoichiometry))
}

// Participant is a compiled reactant or product.
type Participant struct {
	Symbol        *symbol.Symbol
	Stoichiometry int
	Dynamic       bool
}

// Change is one nonzero entry of a reaction's adjustment vector.
type Change struct {
	Index  int
	Amount float64
}

// Reaction is a model reaction compiled against one Network.
type Reaction struct {
	Name      string
	Index     int
	Rate      symbol.Value
	Reactants []Participant
	Products  []Participant
	// Changes lists the dynamic-species deltas of one firing.
	Changes []Change
	// Scope maps local parameter names to their slots.
	Scope map[string]*symbol.Symbol
	// Solver drives the hidden completion half of a delayed reaction.
	Solver *delay.Solver
	// Feeds lists solvers whose intermediate species this reaction produces.
	Feeds []*delay.Solver
}

// ComputeRate evaluates the reaction's propensity or deterministic rate.
func (r *Reaction) ComputeRate(ev *symbol.Evaluator, factors SpeciesRateFactorEvaluator) (float64, error) {
	if r.Solver != nil {
		return r.Solver.ComputeRate(ev)
	}
	if r.Rate.IsExpression() {
		// rates depend on dynamic values, so they are never cached
		return r.Rate.Expression().Evaluate(ev)
	}
	rate := r.Rate.Number()
	for _, p := range r.Reactants {
		v, err := ev.Value(p.Symbol)
		if err != nil {
			return 0, err
		}
		if p.Dynamic {
			rate *= factors.RateFactor(v, p.Stoichiometry)
		} else {
			rate *= MassAction{}.RateFactor(v, p.Stoichiometry)
		}
	}
	return rate, nil
}
