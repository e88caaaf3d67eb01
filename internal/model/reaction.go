package model

import (
	"errors"
	"fmt"

	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
)

var ErrDuplicateParticipant = errors.New("species already participates in reaction")

// ReactionElement is one reactant or product entry.
type ReactionElement struct {
	Species       *Species
	Stoichiometry int
	// Dynamic is false for boundary species, whose value the reaction does
	// not change.
	Dynamic bool
}

// Reaction transforms reactants into products at a fixed or expression rate.
// Steps > 1 models a linear chain of intermediate steps; Delay > 0 a pure
// delay between consumption and production.
type Reaction struct {
	Name  string
	Rate  symbol.Value
	Steps int
	Delay float64

	reactants []ReactionElement
	products  []ReactionElement
	local     []*Parameter
}

func NewReaction(name string, rate symbol.Value) *Reaction {
	return &Reaction{Name: name, Rate: rate, Steps: 1}
}

func (r *Reaction) AddReactant(sp *Species, stoichiometry int) error {
	elems, err := addParticipant(r.Name, "reactant", r.reactants, sp, stoichiometry)
	if err != nil {
		return err
	}
	r.reactants = elems
	return nil
}

func (r *Reaction) AddProduct(sp *Species, stoichiometry int) error {
	elems, err := addParticipant(r.Name, "product", r.products, sp, stoichiometry)
	if err != nil {
		return err
	}
	r.products = elems
	return nil
}

func addParticipant(reaction, role string, elems []ReactionElement, sp *Species, stoichiometry int) ([]ReactionElement, error) {
	if sp == nil {
		return nil, simerr.InvalidInput("reaction %s: nil %s species", reaction, role)
	}
	if stoichiometry < 1 {
		return nil, simerr.InvalidInput("reaction %s: %s %s stoichiometry %d < 1", reaction, role, sp.Name, stoichiometry)
	}
	for _, e := range elems {
		if e.Species.Name == sp.Name {
			return nil, fmt.Errorf("%w: %s %s in %s", ErrDuplicateParticipant, role, sp.Name, reaction)
		}
	}
	return append(elems, ReactionElement{
		Species:       sp,
		Stoichiometry: stoichiometry,
		Dynamic:       !sp.Boundary,
	}), nil
}

// MustAddReactant is AddReactant for static network definitions.
func (r *Reaction) MustAddReactant(sp *Species, stoichiometry int) *Reaction {
	if err := r.AddReactant(sp, stoichiometry); err != nil {
		panic(err)
	}
	return r
}

func (r *Reaction) MustAddProduct(sp *Species, stoichiometry int) *Reaction {
	if err := r.AddProduct(sp, stoichiometry); err != nil {
		panic(err)
	}
	return r
}

func (r *Reaction) Reactants() []ReactionElement {
	return append([]ReactionElement(nil), r.reactants...)
}

func (r *Reaction) Products() []ReactionElement {
	return append([]ReactionElement(nil), r.products...)
}

// AddLocalParameter attaches a parameter visible only to this reaction's rate
// expression, where it shadows any global symbol of the same name.
func (r *Reaction) AddLocalParameter(name string, value symbol.Value) error {
	if name == "" {
		return simerr.InvalidInput("reaction %s: local parameter name is required", r.Name)
	}
	for _, p := range r.local {
		if p.Name == name {
			return simerr.InvalidInput("reaction %s: duplicate local parameter %s", r.Name, name)
		}
	}
	r.local = append(r.local, &Parameter{Name: name, Value: value})
	return nil
}

func (r *Reaction) LocalParameters() []*Parameter {
	return append([]*Parameter(nil), r.local...)
}

// IsDelayed reports whether the reaction needs a delayed-reaction solver.
func (r *Reaction) IsDelayed() bool {
	return r.Delay > 0 || r.Steps > 1
}

func (r *Reaction) String() string {
	return fmt.Sprintf("%s: %s -> %s, %s", r.Name, formatElements(r.reactants), formatElements(r.products), r.Rate)
}

func formatElements(elems []ReactionElement) string {
	if len(elems) == 0 {
		return "0"
	}
	out := ""
	for i, e := range elems {
		if i > 0 {
			out += " + "
		}
		if e.Stoichiometry > 1 {
			out += fmt.Sprintf("%d ", e.Stoichiometry)
		}
		if e.Species.Boundary {
			out += "$"
		}
		out += e.Species.Name
	}
	return out
}
