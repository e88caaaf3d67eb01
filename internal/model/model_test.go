package model

import (
	"errors"
	"strings"
	"testing"

	"chemsim/internal/simerr"
	"chemsim/internal/symbol"
)

func buildBirthDeath(t *testing.T) *Model {
	t.Helper()
	m := New("birth-death")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	x := m.AddSpecies("X", cell, symbol.NumberValue(10))
	m.AddParameter("k1", symbol.NumberValue(5))
	m.AddParameter("k2", symbol.NumberValue(0.5))

	birth := NewReaction("birth", symbol.ExpressionValue(symbol.Ref("k1")))
	if err := birth.AddProduct(x, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	death := NewReaction("death", symbol.NumberValue(0.5))
	if err := death.AddReactant(x, 1); err != nil {
		t.Fatalf("add reactant: %v", err)
	}
	m.AddReaction(birth)
	m.AddReaction(death)
	return m
}

func TestValidModel(t *testing.T) {
	m := buildBirthDeath(t)
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := strings.Join(m.SymbolNames(), ","); got != "X,cell,k1,k2" {
		t.Fatalf("unexpected symbol names: %s", got)
	}
}

func TestDuplicateParticipant(t *testing.T) {
	m := New("dup")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(1))

	r := NewReaction("r", symbol.NumberValue(1))
	if err := r.AddReactant(a, 1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := r.AddReactant(a, 2); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected ErrDuplicateParticipant, got: %v", err)
	}
	// the same species may be both reactant and product
	if err := r.AddProduct(a, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if err := r.AddProduct(a, 1); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected ErrDuplicateParticipant, got: %v", err)
	}
}

func TestInvalidStoichiometry(t *testing.T) {
	m := New("stoich")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(1))
	r := NewReaction("r", symbol.NumberValue(1))
	if err := r.AddReactant(a, 0); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got: %v", err)
	}
}

func TestBoundarySpeciesAreNotDynamic(t *testing.T) {
	m := New("boundary")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	s := m.AddBoundarySpecies("S", cell, symbol.NumberValue(100))
	r := NewReaction("r", symbol.NumberValue(1))
	if err := r.AddReactant(s, 1); err != nil {
		t.Fatalf("add reactant: %v", err)
	}
	if r.Reactants()[0].Dynamic {
		t.Fatal("boundary reactant must not be dynamic")
	}
}

func TestValidateCollectsIssues(t *testing.T) {
	m := New("broken")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	orphan := &Compartment{Name: "orphan", Volume: symbol.NumberValue(1)}
	a := m.AddSpecies("A", cell, symbol.NumberValue(1))
	m.AddSpecies("B", orphan, symbol.NumberValue(1))
	m.AddParameter("A", symbol.NumberValue(2))
	m.AddParameter("p", symbol.ExpressionValue(symbol.Mul(symbol.Ref("q"), symbol.Num(2))))
	m.AddParameter("q", symbol.ExpressionValue(symbol.Add(symbol.Ref("p"), symbol.Num(1))))

	stranger := &Species{Name: "Z", Compartment: cell}
	r := NewReaction("r", symbol.ExpressionValue(symbol.Mul(symbol.Ref("missing"), symbol.Ref("A"))))
	r.Steps = 0
	r.Delay = -1
	if err := r.AddReactant(a, 1); err != nil {
		t.Fatalf("add reactant: %v", err)
	}
	if err := r.AddProduct(stranger, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	m.AddReaction(r)

	err := m.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got: %v", err)
	}
	want := []string{
		"duplicate symbol A",
		"unknown compartment orphan",
		"unknown species Z",
		"steps 0 < 1",
		"negative delay",
		"unknown symbol missing",
		"circular definition",
	}
	joined := strings.Join(verr.Issues, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Fatalf("expected issue containing %q, got:\n%s", w, joined)
		}
	}
}

func TestLocalParametersShadowForValidation(t *testing.T) {
	m := New("local")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	s := m.AddSpecies("S", cell, symbol.NumberValue(10))
	r := NewReaction("mm", symbol.ExpressionValue(symbol.Div(symbol.Mul(symbol.Ref("vmax"), symbol.Ref("S")), symbol.Add(symbol.Ref("km"), symbol.Ref("S")))))
	if err := r.AddReactant(s, 1); err != nil {
		t.Fatalf("add reactant: %v", err)
	}
	if err := r.AddLocalParameter("vmax", symbol.NumberValue(2)); err != nil {
		t.Fatalf("add local: %v", err)
	}
	if err := r.AddLocalParameter("km", symbol.NumberValue(5)); err != nil {
		t.Fatalf("add local: %v", err)
	}
	if err := r.AddLocalParameter("km", symbol.NumberValue(6)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Fatalf("expected duplicate local parameter error, got: %v", err)
	}
	m.AddReaction(r)
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestReactionString(t *testing.T) {
	m := New("str")
	cell := m.AddCompartment("cell", symbol.NumberValue(1))
	a := m.AddSpecies("A", cell, symbol.NumberValue(1))
	b := m.AddSpecies("B", cell, symbol.NumberValue(0))
	r := NewReaction("dim", symbol.NumberValue(0.1)).MustAddReactant(a, 2).MustAddProduct(b, 1)
	if got := r.String(); got != "dim: 2 A -> B, 0.1" {
		t.Fatalf("unexpected reaction string: %q", got)
	}
	if r.IsDelayed() {
		t.Fatal("plain reaction must not be delayed")
	}
}
