package whenthen

import "github.com/paveg/whenthen/internal/expr"

// Col returns an Expression referencing a column.
func Col(name string) Expression {
	return Expression{expr: expr.Col(name)}
}

// Lit returns a literal Expression. Go ints become int64; nil is a null of
// no particular type.
func Lit(value interface{}) Expression {
	return Expression{expr: expr.Lit(value)}
}

func (e Expression) String() string { return e.expr.String() }

// Alias names the result of the expression.
func (e Expression) Alias(name string) Expression {
	return Expression{expr: expr.Alias(e.expr, name)}
}

func (e Expression) binary(op expr.BinaryOp, other Expression) Expression {
	return Expression{expr: expr.Binary(e.expr, op, other.expr)}
}

// Eq compares for equality. Comparing with Lit(nil) tests for null.
func (e Expression) Eq(other Expression) Expression { return e.binary(expr.OpEq, other) }

// Ne compares for inequality. Comparing with Lit(nil) tests for non-null.
func (e Expression) Ne(other Expression) Expression { return e.binary(expr.OpNe, other) }

func (e Expression) Lt(other Expression) Expression { return e.binary(expr.OpLt, other) }
func (e Expression) Le(other Expression) Expression { return e.binary(expr.OpLe, other) }
func (e Expression) Gt(other Expression) Expression { return e.binary(expr.OpGt, other) }
func (e Expression) Ge(other Expression) Expression { return e.binary(expr.OpGe, other) }

func (e Expression) Add(other Expression) Expression { return e.binary(expr.OpAdd, other) }
func (e Expression) Sub(other Expression) Expression { return e.binary(expr.OpSub, other) }
func (e Expression) Mul(other Expression) Expression { return e.binary(expr.OpMul, other) }

// Div always yields float64.
func (e Expression) Div(other Expression) Expression { return e.binary(expr.OpDiv, other) }

// And and Or follow three-valued logic.
func (e Expression) And(other Expression) Expression { return e.binary(expr.OpAnd, other) }
func (e Expression) Or(other Expression) Expression  { return e.binary(expr.OpOr, other) }

// Not negates a boolean expression.
func (e Expression) Not() Expression {
	return Expression{expr: expr.Not(e.expr)}
}

// IsNull tests every value for null.
func (e Expression) IsNull() Expression {
	return Expression{expr: expr.IsNull(e.expr)}
}

// IsNotNull tests every value for non-null.
func (e Expression) IsNotNull() Expression {
	return Expression{expr: expr.IsNotNull(e.expr)}
}

// Aggregations. Outside a grouping they reduce the whole column to one value.

func Sum(e Expression) Expression       { return Expression{expr: expr.Sum(e.expr)} }
func Count(e Expression) Expression     { return Expression{expr: expr.Count(e.expr)} }
func Mean(e Expression) Expression      { return Expression{expr: expr.Mean(e.expr)} }
func Min(e Expression) Expression       { return Expression{expr: expr.Min(e.expr)} }
func Max(e Expression) Expression       { return Expression{expr: expr.Max(e.expr)} }
func First(e Expression) Expression     { return Expression{expr: expr.First(e.expr)} }
func Last(e Expression) Expression      { return Expression{expr: expr.Last(e.expr)} }
func NullCount(e Expression) Expression { return Expression{expr: expr.NullCount(e.expr)} }

// List collects the values of every group into a list.
func List(e Expression) Expression { return Expression{expr: expr.List(e.expr)} }

// WhenBuilder holds a condition waiting for its Then value.
type WhenBuilder struct {
	b *expr.WhenBuilder
}

// ThenBuilder holds complete branches waiting for When or Otherwise.
type ThenBuilder struct {
	b *expr.ThenBuilder
}

// When starts a conditional expression:
//
//	When(Col("a").IsNull()).Then(Col("b")).Otherwise(Col("a"))
//
// Chained conditions are tested in order; the first that holds selects its
// value. A null condition selects the Otherwise branch.
func When(condition Expression) *WhenBuilder {
	return &WhenBuilder{b: expr.When(condition.expr)}
}

// Then sets the value selected where the pending condition holds.
func (w *WhenBuilder) Then(value Expression) *ThenBuilder {
	return &ThenBuilder{b: w.b.Then(value.expr)}
}

// When chains another condition.
func (t *ThenBuilder) When(condition Expression) *WhenBuilder {
	return &WhenBuilder{b: t.b.When(condition.expr)}
}

// Otherwise completes the expression.
func (t *ThenBuilder) Otherwise(value Expression) Expression {
	return Expression{expr: t.b.Otherwise(value.expr)}
}
