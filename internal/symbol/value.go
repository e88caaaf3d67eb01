package symbol

import "strconv"

// Value is either a fixed number or an expression. Expression results are
// cached until ClearCache is called.
type Value struct {
	number float64
	expr   *Expression

	cached bool
	cache  float64
}

func NumberValue(v float64) Value {
	return Value{number: v}
}

func ExpressionValue(e *Expression) Value {
	if v, ok := e.Number(); ok {
		return Value{number: v}
	}
	return Value{expr: e}
}

func (v *Value) IsExpression() bool { return v.expr != nil }

func (v *Value) Number() float64 { return v.number }

func (v *Value) Expression() *Expression { return v.expr }

func (v *Value) Eval(env Env) (float64, error) {
	if v.expr == nil {
		return v.number, nil
	}
	if v.cached {
		return v.cache, nil
	}
	out, err := v.expr.Evaluate(env)
	if err != nil {
		return 0, err
	}
	v.cache = out
	v.cached = true
	return out, nil
}

func (v *Value) ClearCache() {
	v.cached = false
}

// Clone deep-copies the expression so the copy memoizes its own indexes.
func (v Value) Clone() Value {
	if v.expr == nil {
		return Value{number: v.number}
	}
	return Value{expr: v.expr.Clone()}
}

func (v Value) String() string {
	if v.expr != nil {
		return "[" + v.expr.String() + "]"
	}
	return strconv.FormatFloat(v.number, 'g', -1, 64)
}
