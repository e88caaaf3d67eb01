package symbol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemsim/internal/simerr"
)

func newTestEvaluator() *Evaluator {
	symbols := map[string]*Symbol{
		"X": NewIndexed("X", KindDynamic, 0),
		"Y": NewIndexed("Y", KindDynamic, 1),
		"k": NewIndexed("k", KindNonDynamic, 0),
		"V": NewIndexed("V", KindNonDynamic, 1),
	}
	nonDynamic := []Value{
		NumberValue(0.5),
		ExpressionValue(Mul(Num(2), Ref("k"))),
	}
	return NewEvaluator(symbols, []float64{10, 4}, nonDynamic)
}

func TestBindOnce(t *testing.T) {
	s := New("A")
	if s.Indexed() {
		t.Fatal("new symbol must be unindexed")
	}
	if err := s.Bind(KindDynamic, 3); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := s.Bind(KindDynamic, 3); err != nil {
		t.Fatalf("rebind to same slot: %v", err)
	}
	if err := s.Bind(KindDynamic, 4); !errors.Is(err, simerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got: %v", err)
	}
	if err := New("B").Bind(KindUnindexed, 0); !errors.Is(err, simerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for unindexed kind, got: %v", err)
	}
}

func TestEvaluatorResolvesAndMemoizes(t *testing.T) {
	ev := newTestEvaluator()
	ev.SetTime(2.5)

	expr := Add(Mul(Ref("k"), Ref("X")), Ref("time"))
	got, err := expr.Evaluate(ev)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*10+2.5, got, 1e-12)

	for _, ref := range expr.Refs() {
		assert.True(t, ref.Indexed(), "reference %s should be memoized", ref.Name())
	}

	navo, err := ev.ValueOf(NameAvogadro)
	require.NoError(t, err)
	assert.Equal(t, Avogadro, navo)
}

func TestEvaluatorUnknownSymbol(t *testing.T) {
	ev := newTestEvaluator()
	_, err := Ref("missing").Evaluate(ev)
	if !errors.Is(err, simerr.ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound, got: %v", err)
	}
}

func TestResolvePrefersScope(t *testing.T) {
	ev := newTestEvaluator()
	scope := map[string]*Symbol{"k": NewIndexed("k", KindNonDynamic, 1)}
	s := New("k")
	require.NoError(t, ev.Resolve(s, scope))
	assert.Equal(t, 1, s.Index())

	v, err := ev.Value(s)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestExpressionValueCaching(t *testing.T) {
	ev := newTestEvaluator()
	v := ExpressionValue(Mul(Ref("X"), Num(3)))
	first, err := v.Eval(ev)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, first, 1e-12)

	ev.Dynamic()[0] = 20
	cached, err := v.Eval(ev)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, cached, 1e-12, "value should be cached until cleared")

	v.ClearCache()
	fresh, err := v.Eval(ev)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, fresh, 1e-12)
}

func TestExpressionValueCollapsesLiteral(t *testing.T) {
	v := ExpressionValue(Num(4))
	assert.False(t, v.IsExpression())
	assert.Equal(t, 4.0, v.Number())
}

func TestCloneGetsFreshSymbols(t *testing.T) {
	ev := newTestEvaluator()
	expr := Mul(Ref("X"), Ref("Y"))
	_, err := expr.Evaluate(ev)
	require.NoError(t, err)

	clone := expr.Clone()
	for _, ref := range clone.Refs() {
		assert.False(t, ref.Indexed(), "clone must not share memoized symbols")
	}
	got, err := clone.Evaluate(ev)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, got, 1e-12)
}

func TestFunctions(t *testing.T) {
	ev := newTestEvaluator()
	cases := []struct {
		name string
		expr *Expression
		want float64
	}{
		{name: "exp", expr: MustFunc("exp", Num(0)), want: 1},
		{name: "max", expr: MustFunc("max", Ref("X"), Ref("Y")), want: 10},
		{name: "theta positive", expr: MustFunc("theta", Num(0.1)), want: 1},
		{name: "theta zero", expr: MustFunc("theta", Num(0)), want: 0},
		{name: "pow", expr: Pow(Num(2), Num(10)), want: 1024},
		{name: "neg", expr: Neg(Sub(Num(1), Num(3))), want: 2},
		{name: "sqrt", expr: MustFunc("sqrt", Num(16)), want: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.expr.Evaluate(ev)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	if _, err := Func("gamma", Num(1)); !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got: %v", err)
	}
	if _, err := Func("min", Num(1)); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestExpressionString(t *testing.T) {
	expr := Mul(Add(Ref("a"), Ref("b")), Sub(Ref("c"), Sub(Ref("d"), Num(1))))
	assert.Equal(t, "(a + b) * (c - (d - 1))", expr.String())
	assert.Equal(t, []string{"a", "b", "c", "d"}, expr.Symbols())
}

func TestConcentrationPostProcessor(t *testing.T) {
	symbols := map[string]*Symbol{
		"A":    NewIndexed("A", KindDynamic, 0),
		"cell": NewIndexed("cell", KindNonDynamic, 0),
	}
	post := &ConcentrationPostProcessor{
		DynamicCompartments: []*Symbol{symbols["cell"]},
	}
	ev := NewEvaluator(symbols, []float64{50}, []Value{NumberValue(2)}, WithPostProcessor(post))
	got, err := ev.ValueOf("A")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, got, 1e-12)

	vol, err := ev.ValueOf("cell")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, vol, 1e-12)

	zero := NewEvaluator(symbols, []float64{50}, []Value{NumberValue(0)}, WithPostProcessor(post))
	if _, err := zero.ValueOf("A"); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on zero volume, got: %v", err)
	}
	assert.False(t, math.IsNaN(vol))
}
