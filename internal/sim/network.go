package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"chemsim/internal/delay"
	"chemsim/internal/model"
	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
)

const (
	IntermediateSuffix    = "___intermed_species_0"
	DelayedReactionSuffix = "___delayed_reaction"
)

type CompileOptions struct {
	Stochastic  bool
	HistoryBins int
}

// Network is a model compiled for one simulator instance: dense value
// arrays, indexed symbols, compiled reactions and delayed-reaction solvers.
// Nothing in a Network is shared with another instance.
type Network struct {
	Model      *model.Model
	Stochastic bool

	Symbols      map[string]*symbol.Symbol
	DynamicNames []string
	Dynamic      []float64
	NonDynamic   []symbol.Value
	Reactions    []*Reaction
	Solvers      []*delay.Solver
	Factors      SpeciesRateFactorEvaluator
	Rand         *rand.Rand

	// Evaluator is the active evaluator; Configure switches it between
	// population and concentration semantics.
	Evaluator *symbol.Evaluator

	pcg            *rand.PCG
	initial        []symbol.Value
	plain          *symbol.Evaluator
	concentration  *symbol.Evaluator
	compartments   *symbol.ConcentrationPostProcessor
	hasExpressions bool
	historyBins    int
	delayed        []delayedLink
}

type delayedLink struct {
	cfg    delay.Config
	first  int
	hidden int
}

// participant is a reaction element before symbol indexing.
type participant struct {
	name          string
	stoichiometry int
	dynamic       bool
}

type reactionSpec struct {
	name      string
	rate      symbol.Value
	reactants []participant
	products  []participant
	local     []*model.Parameter
}

// Compile validates m and builds a Network for it. Delayed and multistep
// reactions are split into a feeding reaction and a solver-driven completion
// reaction through a hidden intermediate species.
func Compile(m *model.Model, opts CompileOptions) (*Network, error) {
	if m == nil {
		return nil, simerr.IllegalArgument("model is required")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", simerr.ErrInvalidInput, err)
	}
	if opts.HistoryBins == 0 {
		opts.HistoryBins = delay.DefaultHistoryBins
	}

	pcg := rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)
	n := &Network{
		Model:       m,
		Stochastic:  opts.Stochastic,
		Symbols:     make(map[string]*symbol.Symbol),
		Rand:        rand.New(pcg),
		pcg:         pcg,
		historyBins: opts.HistoryBins,
	}
	if opts.Stochastic {
		n.Factors = Combinatoric{}
	} else {
		n.Factors = MassAction{}
	}

	specs, delayed, intermediates, err := expandDelayed(m)
	if err != nil {
		return nil, err
	}

	var dynCompartments, nonDynCompartments []*symbol.Symbol
	addNonDynamic := func(name string, v symbol.Value) *symbol.Symbol {
		sym := symbol.NewIndexed(name, symbol.KindNonDynamic, len(n.NonDynamic))
		n.NonDynamic = append(n.NonDynamic, v.Clone())
		nonDynCompartments = append(nonDynCompartments, nil)
		if v.IsExpression() {
			n.hasExpressions = true
		}
		return sym
	}

	for _, c := range m.Compartments() {
		n.Symbols[c.Name] = addNonDynamic(c.Name, c.Volume)
	}
	for _, p := range m.Parameters() {
		n.Symbols[p.Name] = addNonDynamic(p.Name, p.Value)
	}
	for _, sp := range m.Species() {
		if sp.Boundary {
			sym := addNonDynamic(sp.Name, sp.Population)
			nonDynCompartments[sym.Index()] = n.Symbols[sp.Compartment.Name]
			n.Symbols[sp.Name] = sym
			continue
		}
		if opts.Stochastic && !sp.Population.IsExpression() {
			if err := checkRepresentable(sp.Name, sp.Population.Number()); err != nil {
				return nil, err
			}
		}
		n.Symbols[sp.Name] = n.addDynamic(sp.Name, sp.Population.Clone())
		dynCompartments = append(dynCompartments, n.Symbols[sp.Compartment.Name])
	}
	for _, im := range intermediates {
		n.Symbols[im.name] = n.addDynamic(im.name, symbol.NumberValue(0))
		dynCompartments = append(dynCompartments, n.Symbols[im.compartment])
	}

	n.compartments = &symbol.ConcentrationPostProcessor{
		DynamicCompartments:    dynCompartments,
		NonDynamicCompartments: nonDynCompartments,
	}
	n.plain = symbol.NewEvaluator(n.Symbols, n.Dynamic, n.NonDynamic)
	n.concentration = symbol.NewEvaluator(n.Symbols, n.Dynamic, n.NonDynamic, symbol.WithPostProcessor(n.compartments))
	n.Evaluator = n.plain

	for i := range n.NonDynamic {
		if err := n.resolveValue(&n.NonDynamic[i], nil); err != nil {
			return nil, err
		}
	}
	for i := range n.initial {
		if err := n.resolveValue(&n.initial[i], nil); err != nil {
			return nil, err
		}
	}

	for _, spec := range specs {
		r, err := n.compileReaction(spec)
		if err != nil {
			return nil, err
		}
		n.Reactions = append(n.Reactions, r)
	}

	for i := range delayed {
		link := &delayed[i]
		link.cfg.Reactant = n.Symbols[link.cfg.Reactant.Name()]
		link.cfg.Intermediate = n.Symbols[link.cfg.Intermediate.Name()]
		link.cfg.Stochastic = opts.Stochastic
	}
	n.delayed = delayed
	if err := n.buildSolvers(opts.HistoryBins); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) addDynamic(name string, initial symbol.Value) *symbol.Symbol {
	sym := symbol.NewIndexed(name, symbol.KindDynamic, len(n.Dynamic))
	n.Dynamic = append(n.Dynamic, 0)
	n.DynamicNames = append(n.DynamicNames, name)
	n.initial = append(n.initial, initial)
	return sym
}

func (n *Network) resolveValue(v *symbol.Value, scope map[string]*symbol.Symbol) error {
	if !v.IsExpression() {
		return nil
	}
	for _, ref := range v.Expression().Refs() {
		if err := n.plain.Resolve(ref, scope); err != nil {
			return err
		}
	}
	return nil
}

type intermediate struct {
	name        string
	compartment string
}

func expandDelayed(m *model.Model) ([]reactionSpec, []delayedLink, []intermediate, error) {
	var (
		specs         []reactionSpec
		hidden        []reactionSpec
		delayed       []delayedLink
		intermediates []intermediate
	)
	toParticipants := func(elems []model.ReactionElement) []participant {
		out := make([]participant, 0, len(elems))
		for _, e := range elems {
			out = append(out, participant{name: e.Species.Name, stoichiometry: e.Stoichiometry, dynamic: e.Dynamic})
		}
		return out
	}

	reactions := m.Reactions()
	for _, r := range reactions {
		spec := reactionSpec{
			name:      r.Name,
			rate:      r.Rate,
			reactants: toParticipants(r.Reactants()),
			products:  toParticipants(r.Products()),
			local:     r.LocalParameters(),
		}
		if !r.IsDelayed() {
			specs = append(specs, spec)
			continue
		}

		reactants, products := r.Reactants(), r.Products()
		switch {
		case len(reactants) != 1:
			return nil, nil, nil, simerr.InvalidInput("delayed reaction %s must have exactly one reactant, has %d", r.Name, len(reactants))
		case len(products) != 1:
			return nil, nil, nil, simerr.InvalidInput("delayed reaction %s must have exactly one product, has %d", r.Name, len(products))
		case reactants[0].Species.Compartment != products[0].Species.Compartment:
			return nil, nil, nil, simerr.InvalidInput("delayed reaction %s: reactant and product must share a compartment", r.Name)
		case r.Rate.IsExpression():
			return nil, nil, nil, simerr.InvalidInput("delayed reaction %s must have a numeric rate", r.Name)
		}
		rate := r.Rate.Number()
		reactant, product := reactants[0].Species, products[0].Species
		intermed := r.Name + IntermediateSuffix
		intermediates = append(intermediates, intermediate{name: intermed, compartment: reactant.Compartment.Name})

		specs = append(specs, reactionSpec{
			name:      r.Name,
			rate:      symbol.NumberValue(rate),
			reactants: []participant{{name: reactant.Name, stoichiometry: 1, dynamic: !reactant.Boundary}},
			products:  []participant{{name: intermed, stoichiometry: 1, dynamic: true}},
		})
		hidden = append(hidden, reactionSpec{
			name:      r.Name + DelayedReactionSuffix,
			rate:      symbol.NumberValue(rate),
			reactants: []participant{{name: intermed, stoichiometry: 1, dynamic: true}},
			products:  []participant{{name: product.Name, stoichiometry: 1, dynamic: !product.Boundary}},
		})

		d := r.Delay
		multistep := r.Steps > 1
		if multistep {
			d = float64(r.Steps-1) / rate
		}
		delayed = append(delayed, delayedLink{
			cfg: delay.Config{
				Reaction:     r.Name,
				Reactant:     symbol.New(reactant.Name),
				Intermediate: symbol.New(intermed),
				Rate:         rate,
				Delay:        d,
				Multistep:    multistep,
			},
			first: len(specs) - 1,
		})
	}
	for i := range delayed {
		delayed[i].hidden = len(specs) + i
	}
	return append(specs, hidden...), delayed, intermediates, nil
}

func (n *Network) compileReaction(spec reactionSpec) (*Reaction, error) {
	r := &Reaction{
		Name:  spec.name,
		Index: len(n.Reactions),
		Rate:  spec.rate.Clone(),
	}
	if len(spec.local) > 0 {
		r.Scope = make(map[string]*symbol.Symbol, len(spec.local))
		for _, p := range spec.local {
			sym := symbol.NewIndexed(p.Name, symbol.KindNonDynamic, len(n.NonDynamic))
			v := p.Value.Clone()
			if err := n.resolveValue(&v, nil); err != nil {
				return nil, fmt.Errorf("reaction %s: %w", spec.name, err)
			}
			if v.IsExpression() {
				n.hasExpressions = true
			}
			n.NonDynamic = append(n.NonDynamic, v)
			n.compartments.NonDynamicCompartments = append(n.compartments.NonDynamicCompartments, nil)
			r.Scope[p.Name] = sym
		}
		// the evaluators captured the old backing array
		n.plain = symbol.NewEvaluator(n.Symbols, n.Dynamic, n.NonDynamic)
		n.concentration = symbol.NewEvaluator(n.Symbols, n.Dynamic, n.NonDynamic, symbol.WithPostProcessor(n.compartments))
		n.Evaluator = n.plain
	}
	if err := n.resolveValue(&r.Rate, r.Scope); err != nil {
		return nil, fmt.Errorf("reaction %s: %w", spec.name, err)
	}

	changes := make(map[int]float64)
	var order []int
	bind := func(p participant, sign float64) (Participant, error) {
		sym, ok := n.Symbols[p.name]
		if !ok {
			return Participant{}, simerr.DataNotFound("reaction %s: unknown species %s", spec.name, p.name)
		}
		if p.dynamic && sym.Kind() == symbol.KindDynamic {
			if _, seen := changes[sym.Index()]; !seen {
				order = append(order, sym.Index())
			}
			changes[sym.Index()] += sign * float64(p.stoichiometry)
		}
		return Participant{Symbol: sym, Stoichiometry: p.stoichiometry, Dynamic: p.dynamic}, nil
	}
	for _, p := range spec.reactants {
		bound, err := bind(p, -1)
		if err != nil {
			return nil, err
		}
		r.Reactants = append(r.Reactants, bound)
	}
	for _, p := range spec.products {
		bound, err := bind(p, 1)
		if err != nil {
			return nil, err
		}
		r.Products = append(r.Products, bound)
	}
	for _, idx := range order {
		if amount := changes[idx]; amount != 0 {
			r.Changes = append(r.Changes, Change{Index: idx, Amount: amount})
		}
	}
	return r, nil
}

func (n *Network) buildSolvers(bins int) error {
	n.Solvers = n.Solvers[:0]
	for _, r := range n.Reactions {
		r.Solver = nil
		r.Feeds = nil
	}
	for _, link := range n.delayed {
		cfg := link.cfg
		cfg.HistoryBins = bins
		s, err := delay.New(cfg, n.Rand)
		if err != nil {
			return err
		}
		n.Solvers = append(n.Solvers, s)
		n.Reactions[link.hidden].Solver = s
		n.Reactions[link.first].Feeds = append(n.Reactions[link.first].Feeds, s)
	}
	n.historyBins = bins
	return nil
}

// HasLocalParameters reports whether any reaction declares local parameters.
func (n *Network) HasLocalParameters() bool {
	for _, r := range n.Reactions {
		if len(r.Scope) > 0 {
			return true
		}
	}
	return false
}

// Configure applies the per-call parameters that change how the network is
// evaluated. It must run before Reset.
func (n *Network) Configure(p Parameters) error {
	if p.ConcentrationUnits {
		n.Evaluator = n.concentration
	} else {
		n.Evaluator = n.plain
	}
	if p.NumHistoryBins != nil && *p.NumHistoryBins != n.historyBins {
		if err := n.buildSolvers(*p.NumHistoryBins); err != nil {
			return err
		}
	}
	if p.Seed != nil {
		n.Seed(*p.Seed)
	}
	return nil
}

func (n *Network) Seed(seed uint64) {
	n.pcg.Seed(seed, seed^0x9e3779b97f4a7c15)
}

// Reset restores initial values at time start and clears solver state.
func (n *Network) Reset(start float64) error {
	ev := n.Evaluator
	ev.SetTime(start)
	ev.ClearExpressionCaches()
	for i := range n.initial {
		v, err := n.initial[i].Eval(ev)
		if err != nil {
			return err
		}
		n.initial[i].ClearCache()
		if v < 0 || math.IsNaN(v) {
			return simerr.InvalidInput("species %s has invalid initial value %g", n.DynamicNames[i], v)
		}
		n.Dynamic[i] = v
	}
	ev.ClearExpressionCaches()
	for _, s := range n.Solvers {
		s.Clear()
	}
	return nil
}

// Integerize rounds every dynamic value to an integer, rounding up with
// probability equal to its fractional part.
func (n *Network) Integerize() error {
	for i, v := range n.Dynamic {
		if err := checkRepresentable(n.DynamicNames[i], v); err != nil {
			return err
		}
		floor := math.Floor(v)
		if frac := v - floor; frac > 0 && n.Rand.Float64() < frac {
			floor++
		}
		n.Dynamic[i] = floor
	}
	return nil
}

// ClearCaches invalidates cached expression values after dynamic values
// change.
func (n *Network) ClearCaches() {
	if n.hasExpressions {
		n.Evaluator.ClearExpressionCaches()
	}
}

func (n *Network) ComputeRate(j int) (float64, error) {
	return n.Reactions[j].ComputeRate(n.Evaluator, n.Factors)
}

// ComputeRates fills rates with every reaction's current rate and returns
// their sum.
func (n *Network) ComputeRates(rates []float64) (float64, error) {
	n.ClearCaches()
	var total float64
	for j := len(n.Reactions) - 1; j >= 0; j-- {
		rate, err := n.ComputeRate(j)
		if err != nil {
			return 0, err
		}
		rates[j] = rate
		total += rate
	}
	return total, nil
}

// Derivative computes dy/dt = sum_j rate_j * v_j into out.
func (n *Network) Derivative(rates, out []float64) error {
	if _, err := n.ComputeRates(rates); err != nil {
		return err
	}
	clear(out)
	for j, r := range n.Reactions {
		rate := rates[j]
		if rate == 0 {
			continue
		}
		for _, c := range r.Changes {
			out[c.Index] += rate * c.Amount
		}
	}
	return nil
}

// Fire applies firings of reaction j at time now and schedules completions
// for any delayed reaction it feeds.
func (n *Network) Fire(j int, firings float64, now float64) {
	r := n.Reactions[j]
	for _, c := range r.Changes {
		n.Dynamic[c.Index] += c.Amount * firings
	}
	for _, s := range r.Feeds {
		count := int64(firings)
		for k := int64(0); k < count; k++ {
			s.AddReactant(now)
		}
	}
}

// MinDelay is the smallest delay among the network's solvers, or +Inf.
func (n *Network) MinDelay() float64 {
	out := math.Inf(1)
	for _, s := range n.Solvers {
		out = math.Min(out, s.Delay())
	}
	return out
}

// NextDelayedEvent returns the solver with the earliest pending completion.
func (n *Network) NextDelayedEvent() (*delay.Solver, float64) {
	var (
		best *delay.Solver
		when = math.Inf(1)
	)
	for _, s := range n.Solvers {
		if t := s.NextTime(); t < when {
			best, when = s, t
		}
	}
	return best, when
}

// HiddenReaction returns the index of the completion reaction driven by s.
func (n *Network) HiddenReaction(s *delay.Solver) int {
	for _, r := range n.Reactions {
		if r.Solver == s {
			return r.Index
		}
	}
	return -1
}

// UpdateSolvers records solver history after a deterministic step.
func (n *Network) UpdateSolvers(t float64) error {
	for _, s := range n.Solvers {
		if err := s.Update(n.Evaluator, t); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a requested output symbol by name.
func (n *Network) Lookup(name string) (*symbol.Symbol, error) {
	if kind, ok := symbol.Reserved(name); ok {
		return symbol.NewIndexed(name, kind, -1), nil
	}
	sym, ok := n.Symbols[name]
	if !ok {
		return nil, simerr.DataNotFound("unknown symbol %q", name)
	}
	return sym, nil
}

// RateDependencies lists the dynamic species a reaction's rate reads,
// following expression definitions transitively, and whether it reads time.
func (n *Network) RateDependencies(j int) ([]int, bool) {
	r := n.Reactions[j]
	deps := depSet{seen: make(map[int]struct{}), visited: make(map[int]struct{})}
	if r.Solver != nil {
		if !n.Stochastic {
			deps.add(r.Solver.Reactant(), n)
			deps.add(r.Solver.Intermediate(), n)
			deps.time = true
		}
		return deps.species, deps.time
	}
	if r.Rate.IsExpression() {
		for _, ref := range r.Rate.Expression().Refs() {
			deps.add(ref, n)
		}
	} else {
		for _, p := range r.Reactants {
			deps.add(p.Symbol, n)
		}
	}
	return deps.species, deps.time
}

type depSet struct {
	species []int
	seen    map[int]struct{}
	visited map[int]struct{}
	time    bool
}

func (d *depSet) add(sym *symbol.Symbol, n *Network) {
	switch sym.Kind() {
	case symbol.KindTime:
		d.time = true
	case symbol.KindDynamic:
		if _, ok := d.seen[sym.Index()]; !ok {
			d.seen[sym.Index()] = struct{}{}
			d.species = append(d.species, sym.Index())
		}
		if n.Evaluator == n.concentration {
			if c := n.compartments.DynamicCompartments[sym.Index()]; c != nil {
				d.add(c, n)
			}
		}
	case symbol.KindNonDynamic:
		if _, ok := d.visited[sym.Index()]; ok {
			return
		}
		d.visited[sym.Index()] = struct{}{}
		v := &n.NonDynamic[sym.Index()]
		if v.IsExpression() {
			for _, ref := range v.Expression().Refs() {
				d.add(ref, n)
			}
		}
		if n.Evaluator == n.concentration {
			if c := n.compartments.NonDynamicCompartments[sym.Index()]; c != nil {
				d.add(c, n)
			}
		}
	}
}

func checkRepresentable(name string, v float64) error {
	if v > 1 && v-1 == v {
		return simerr.InvalidInput("species %s population %g exceeds the representable integer range", name, v)
	}
	return nil
}
