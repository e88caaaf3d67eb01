package symbol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Env resolves symbol references during expression evaluation.
type Env interface {
	Value(sym *Symbol) (float64, error)
}

var ErrUnknownFunction = errors.New("unknown function")

// Expression is an immutable arithmetic tree over numbers and symbol
// references. Reference symbols memoize their index, so an expression that is
// evaluated by more than one simulator must be cloned per simulator.
type Expression struct {
	root node
}

type node interface {
	eval(env Env) (float64, error)
	walk(fn func(*Symbol))
	clone() node
	format(b *strings.Builder, parent int)
}

const (
	precAdd = iota + 1
	precMul
	precNeg
	precPow
	precAtom
)

type numNode struct {
	v float64
}

func (n numNode) eval(Env) (float64, error) { return n.v, nil }
func (n numNode) walk(func(*Symbol))         {}
func (n numNode) clone() node                { return n }
func (n numNode) format(b *strings.Builder, _ int) {
	b.WriteString(strconv.FormatFloat(n.v, 'g', -1, 64))
}

type refNode struct {
	sym *Symbol
}

func (n *refNode) eval(env Env) (float64, error) { return env.Value(n.sym) }
func (n *refNode) walk(fn func(*Symbol))         { fn(n.sym) }
func (n *refNode) clone() node                   { return &refNode{sym: New(n.sym.name)} }
func (n *refNode) format(b *strings.Builder, _ int) {
	b.WriteString(n.sym.name)
}

type negNode struct {
	x node
}

func (n *negNode) eval(env Env) (float64, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	return -v, nil
}
func (n *negNode) walk(fn func(*Symbol)) { n.x.walk(fn) }
func (n *negNode) clone() node           { return &negNode{x: n.x.clone()} }
func (n *negNode) format(b *strings.Builder, parent int) {
	open := parent > precNeg
	if open {
		b.WriteByte('(')
	}
	b.WriteByte('-')
	n.x.format(b, precNeg)
	if open {
		b.WriteByte(')')
	}
}

type binNode struct {
	op   byte
	l, r node
}

func (n *binNode) eval(env Env) (float64, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(env)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		return l / r, nil
	case '^':
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

func (n *binNode) walk(fn func(*Symbol)) {
	n.l.walk(fn)
	n.r.walk(fn)
}

func (n *binNode) clone() node {
	return &binNode{op: n.op, l: n.l.clone(), r: n.r.clone()}
}

func (n *binNode) prec() int {
	switch n.op {
	case '+', '-':
		return precAdd
	case '*', '/':
		return precMul
	default:
		return precPow
	}
}

func (n *binNode) format(b *strings.Builder, parent int) {
	p := n.prec()
	open := parent > p
	if open {
		b.WriteByte('(')
	}
	n.l.format(b, p)
	b.WriteByte(' ')
	b.WriteByte(n.op)
	b.WriteByte(' ')
	// right operand of a non-associative operator binds tighter
	n.r.format(b, p+1)
	if open {
		b.WriteByte(')')
	}
}

type callNode struct {
	name string
	fn   function
	args []node
}

type function struct {
	arity int
	apply func(args []float64) float64
}

var functions = map[string]function{
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"log10": {1, func(a []float64) float64 { return math.Log10(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"tan":   {1, func(a []float64) float64 { return math.Tan(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"theta": {1, func(a []float64) float64 {
		if a[0] > 0 {
			return 1
		}
		return 0
	}},
}

func (n *callNode) eval(env Env) (float64, error) {
	var buf [2]float64
	args := buf[:0]
	for _, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		args = append(args, v)
	}
	return n.fn.apply(args), nil
}

func (n *callNode) walk(fn func(*Symbol)) {
	for _, arg := range n.args {
		arg.walk(fn)
	}
}

func (n *callNode) clone() node {
	args := make([]node, len(n.args))
	for i, arg := range n.args {
		args[i] = arg.clone()
	}
	return &callNode{name: n.name, fn: n.fn, args: args}
}

func (n *callNode) format(b *strings.Builder, _ int) {
	b.WriteString(n.name)
	b.WriteByte('(')
	for i, arg := range n.args {
		if i > 0 {
			b.WriteString(", ")
		}
		arg.format(b, 0)
	}
	b.WriteByte(')')
}

func Num(v float64) *Expression {
	return &Expression{root: numNode{v: v}}
}

func Ref(name string) *Expression {
	return &Expression{root: &refNode{sym: New(name)}}
}

func Neg(x *Expression) *Expression {
	return &Expression{root: &negNode{x: x.root}}
}

func Add(terms ...*Expression) *Expression { return fold('+', terms) }
func Mul(terms ...*Expression) *Expression { return fold('*', terms) }

func Sub(l, r *Expression) *Expression { return binary('-', l, r) }
func Div(l, r *Expression) *Expression { return binary('/', l, r) }
func Pow(l, r *Expression) *Expression { return binary('^', l, r) }

func binary(op byte, l, r *Expression) *Expression {
	return &Expression{root: &binNode{op: op, l: l.root, r: r.root}}
}

func fold(op byte, terms []*Expression) *Expression {
	if len(terms) == 0 {
		if op == '*' {
			return Num(1)
		}
		return Num(0)
	}
	acc := terms[0].root
	for _, t := range terms[1:] {
		acc = &binNode{op: op, l: acc, r: t.root}
	}
	return &Expression{root: acc}
}

// Func builds a call to one of the built-in functions.
func Func(name string, args ...*Expression) (*Expression, error) {
	fn, ok := functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("function %s expects %d argument(s), got %d", name, fn.arity, len(args))
	}
	nodes := make([]node, len(args))
	for i, arg := range args {
		nodes[i] = arg.root
	}
	return &Expression{root: &callNode{name: name, fn: fn, args: nodes}}, nil
}

func MustFunc(name string, args ...*Expression) *Expression {
	e, err := Func(name, args...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expression) Evaluate(env Env) (float64, error) {
	return e.root.eval(env)
}

// Number reports the literal value when the whole expression is a number.
func (e *Expression) Number() (float64, bool) {
	n, ok := e.root.(numNode)
	return n.v, ok
}

// Refs returns every reference symbol in the tree, in traversal order.
func (e *Expression) Refs() []*Symbol {
	var refs []*Symbol
	e.root.walk(func(s *Symbol) { refs = append(refs, s) })
	return refs
}

// Symbols returns the distinct referenced names in first-seen order.
func (e *Expression) Symbols() []string {
	seen := make(map[string]struct{})
	var names []string
	e.root.walk(func(s *Symbol) {
		if _, ok := seen[s.name]; ok {
			return
		}
		seen[s.name] = struct{}{}
		names = append(names, s.name)
	})
	return names
}

func (e *Expression) Clone() *Expression {
	return &Expression{root: e.root.clone()}
}

func (e *Expression) String() string {
	var b strings.Builder
	e.root.format(&b, 0)
	return b.String()
}
