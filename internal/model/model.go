// Package model holds the in-memory reaction network consumed by the
// simulators, and the versioned records persisted by the run ledger.
package model

import (
	"fmt"
	"sort"
	"strings"

	"chemsim/internal/symbol"
)

type Compartment struct {
	Name   string
	Volume symbol.Value
}

// Species is a chemical population living in one compartment. Boundary
// species are not changed by reactions.
type Species struct {
	Name        string
	Compartment *Compartment
	Population  symbol.Value
	Boundary    bool
}

type Parameter struct {
	Name  string
	Value symbol.Value
}

type Model struct {
	Name string

	compartments []*Compartment
	species      []*Species
	parameters   []*Parameter
	reactions    []*Reaction
}

func New(name string) *Model {
	return &Model{Name: name}
}

func (m *Model) AddCompartment(name string, volume symbol.Value) *Compartment {
	c := &Compartment{Name: name, Volume: volume}
	m.compartments = append(m.compartments, c)
	return c
}

func (m *Model) AddSpecies(name string, compartment *Compartment, population symbol.Value) *Species {
	sp := &Species{Name: name, Compartment: compartment, Population: population}
	m.species = append(m.species, sp)
	return sp
}

// AddBoundarySpecies adds a species whose value is held fixed or driven by
// its population expression.
func (m *Model) AddBoundarySpecies(name string, compartment *Compartment, population symbol.Value) *Species {
	sp := m.AddSpecies(name, compartment, population)
	sp.Boundary = true
	return sp
}

func (m *Model) AddParameter(name string, value symbol.Value) *Parameter {
	p := &Parameter{Name: name, Value: value}
	m.parameters = append(m.parameters, p)
	return p
}

func (m *Model) AddReaction(r *Reaction) *Reaction {
	m.reactions = append(m.reactions, r)
	return r
}

func (m *Model) Compartments() []*Compartment { return append([]*Compartment(nil), m.compartments...) }
func (m *Model) Species() []*Species          { return append([]*Species(nil), m.species...) }
func (m *Model) Parameters() []*Parameter     { return append([]*Parameter(nil), m.parameters...) }
func (m *Model) Reactions() []*Reaction       { return append([]*Reaction(nil), m.reactions...) }

func (m *Model) FindSpecies(name string) (*Species, bool) {
	for _, sp := range m.species {
		if sp.Name == name {
			return sp, true
		}
	}
	return nil, false
}

// SymbolNames lists every global symbol name, sorted.
func (m *Model) SymbolNames() []string {
	names := make([]string, 0, len(m.compartments)+len(m.species)+len(m.parameters))
	for _, c := range m.compartments {
		names = append(names, c.Name)
	}
	for _, sp := range m.species {
		names = append(names, sp.Name)
	}
	for _, p := range m.parameters {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model validation failed: %s", strings.Join(e.Issues, "; "))
}

// Validate checks the model for structural problems and returns every issue
// found in a single *ValidationError.
func (m *Model) Validate() error {
	var issues []string
	addIssue := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	// name -> defining value, for expression reference and cycle checks
	values := make(map[string]symbol.Value)
	declare := func(kind, name string, v symbol.Value) {
		if name == "" {
			addIssue("%s with empty name", kind)
			return
		}
		if _, reserved := symbol.Reserved(name); reserved {
			addIssue("%s %s uses a reserved name", kind, name)
			return
		}
		if _, dup := values[name]; dup {
			addIssue("duplicate symbol %s", name)
			return
		}
		values[name] = v
	}

	compartments := make(map[*Compartment]struct{}, len(m.compartments))
	for _, c := range m.compartments {
		compartments[c] = struct{}{}
		declare("compartment", c.Name, c.Volume)
	}
	species := make(map[*Species]struct{}, len(m.species))
	for _, sp := range m.species {
		species[sp] = struct{}{}
		declare("species", sp.Name, sp.Population)
		if sp.Compartment == nil {
			addIssue("species %s has no compartment", sp.Name)
		} else if _, ok := compartments[sp.Compartment]; !ok {
			addIssue("species %s references unknown compartment %s", sp.Name, sp.Compartment.Name)
		}
		if !sp.Population.IsExpression() && sp.Population.Number() < 0 {
			addIssue("species %s has negative population %g", sp.Name, sp.Population.Number())
		}
	}
	for _, p := range m.parameters {
		declare("parameter", p.Name, p.Value)
	}

	for name, v := range values {
		checkRefs(name, v, values, nil, addIssue)
	}

	reactionNames := make(map[string]struct{}, len(m.reactions))
	for _, r := range m.reactions {
		if r.Name == "" {
			addIssue("reaction with empty name")
		} else if _, dup := reactionNames[r.Name]; dup {
			addIssue("duplicate reaction %s", r.Name)
		}
		reactionNames[r.Name] = struct{}{}

		for _, e := range append(r.Reactants(), r.Products()...) {
			if _, ok := species[e.Species]; !ok {
				addIssue("reaction %s references unknown species %s", r.Name, e.Species.Name)
			}
		}
		if r.Steps < 1 {
			addIssue("reaction %s has steps %d < 1", r.Name, r.Steps)
		}
		if r.Delay < 0 {
			addIssue("reaction %s has negative delay %g", r.Name, r.Delay)
		}
		local := make(map[string]struct{})
		for _, p := range r.local {
			local[p.Name] = struct{}{}
			checkRefs(r.Name+"."+p.Name, p.Value, values, nil, addIssue)
		}
		checkRefs("reaction "+r.Name, r.Rate, values, local, addIssue)
	}

	for _, cycle := range findCycles(values) {
		addIssue("circular definition: %s", strings.Join(cycle, " -> "))
	}

	if len(issues) == 0 {
		return nil
	}
	sort.Strings(issues)
	return &ValidationError{Issues: issues}
}

func checkRefs(owner string, v symbol.Value, values map[string]symbol.Value, local map[string]struct{}, addIssue func(string, ...any)) {
	if !v.IsExpression() {
		return
	}
	for _, name := range v.Expression().Symbols() {
		if _, ok := symbol.Reserved(name); ok {
			continue
		}
		if _, ok := local[name]; ok {
			continue
		}
		if _, ok := values[name]; !ok {
			addIssue("%s references unknown symbol %s", owner, name)
		}
	}
}

// findCycles runs a depth-first search over expression references and
// returns one path per back edge found.
func findCycles(values map[string]symbol.Value) [][]string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(values))
	var (
		stack  []string
		cycles [][]string
		visit  func(name string)
	)
	visit = func(name string) {
		state[name] = active
		stack = append(stack, name)
		v := values[name]
		if v.IsExpression() {
			for _, ref := range v.Expression().Symbols() {
				if _, ok := values[ref]; !ok {
					continue
				}
				switch state[ref] {
				case active:
					start := 0
					for i, n := range stack {
						if n == ref {
							start = i
							break
						}
					}
					cycle := append(append([]string(nil), stack[start:]...), ref)
					cycles = append(cycles, cycle)
				case unvisited:
					visit(ref)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if state[name] == unvisited {
			visit(name)
		}
	}
	return cycles
}
