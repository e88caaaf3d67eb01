// Package symbol implements the named-quantity model used by the simulation
// engine: symbols with memoized array indexes, fixed-or-expression values,
// expression trees and the evaluator that resolves them during a run.
package symbol

import (
	"chemsim/internal/simerr"
)

// Kind tells the evaluator which backing store a symbol indexes into.
type Kind uint8

const (
	KindUnindexed Kind = iota
	KindDynamic
	KindNonDynamic
	KindTime
	KindAvogadro
)

func (k Kind) String() string {
	switch k {
	case KindDynamic:
		return "dynamic"
	case KindNonDynamic:
		return "non-dynamic"
	case KindTime:
		return "time"
	case KindAvogadro:
		return "avogadro"
	default:
		return "unindexed"
	}
}

const (
	NameTime     = "time"
	NameAvogadro = "Navo"

	// Avogadro is the value bound to the reserved symbol Navo.
	Avogadro = 6.02214076e23
)

// Symbol is a named quantity. Once bound to an index it stays bound.
type Symbol struct {
	name  string
	kind  Kind
	index int
}

func New(name string) *Symbol {
	return &Symbol{name: name, index: -1}
}

// NewIndexed returns a symbol already bound to kind and index.
func NewIndexed(name string, kind Kind, index int) *Symbol {
	return &Symbol{name: name, kind: kind, index: index}
}

func (s *Symbol) Name() string { return s.name }
func (s *Symbol) Kind() Kind   { return s.kind }
func (s *Symbol) Index() int   { return s.index }

func (s *Symbol) Indexed() bool { return s.kind != KindUnindexed }

func (s *Symbol) indexesArray() bool {
	return s.kind == KindDynamic || s.kind == KindNonDynamic
}

// Bind assigns the symbol's kind and index. Rebinding to the same slot is a
// no-op; rebinding to a different slot is rejected.
func (s *Symbol) Bind(kind Kind, index int) error {
	if kind == KindUnindexed {
		return simerr.IllegalArgument("symbol %q: cannot bind to unindexed kind", s.name)
	}
	if s.kind != KindUnindexed {
		if s.kind == kind && s.index == index {
			return nil
		}
		return simerr.IllegalArgument("symbol %q already bound to %s[%d]", s.name, s.kind, s.index)
	}
	s.kind = kind
	s.index = index
	return nil
}

func (s *Symbol) bindTo(target *Symbol) error {
	return s.Bind(target.kind, target.index)
}

// Reserved reports whether name is a reserved symbol and its kind.
func Reserved(name string) (Kind, bool) {
	switch name {
	case NameTime:
		return KindTime, true
	case NameAvogadro:
		return KindAvogadro, true
	default:
		return KindUnindexed, false
	}
}
