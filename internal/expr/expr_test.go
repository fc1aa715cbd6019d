package expr

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhenThenOtherwise(t *testing.T) {
	t.Run("single condition", func(t *testing.T) {
		e := When(Col("a").Gt(Lit(1))).Then(Col("b")).Otherwise(Lit(nil))

		assert.Equal(t, ExprConditional, e.Type())
		assert.Equal(t, "when((col(a) > lit(1))).then(col(b)).otherwise(lit(null))", e.String())
	})

	t.Run("chained conditions nest in the falsy branch", func(t *testing.T) {
		e := When(Col("a")).Then(Lit(1)).
			When(Col("b")).Then(Lit(2)).
			When(Col("c")).Then(Lit(3)).
			Otherwise(Lit(4))

		assert.Equal(t, "col(a)", e.Predicate().String())
		assert.Equal(t, "lit(1)", e.Truthy().String())

		second, ok := e.Falsy().(*ConditionalExpr)
		require.True(t, ok)
		assert.Equal(t, "col(b)", second.Predicate().String())

		third, ok := second.Falsy().(*ConditionalExpr)
		require.True(t, ok)
		assert.Equal(t, "col(c)", third.Predicate().String())
		assert.Equal(t, "lit(4)", third.Falsy().String())
	})

	t.Run("builders can branch", func(t *testing.T) {
		base := When(Col("a")).Then(Lit(1))
		left := base.When(Col("b")).Then(Lit(2)).Otherwise(Lit(0))
		right := base.When(Col("c")).Then(Lit(3)).Otherwise(Lit(0))

		assert.Contains(t, left.String(), "col(b)")
		assert.NotContains(t, left.String(), "col(c)")
		assert.Contains(t, right.String(), "col(c)")
		assert.NotContains(t, right.String(), "col(b)")
	})
}

func TestExprStrings(t *testing.T) {
	tests := []struct {
		expr Expr
		want string
	}{
		{Col("x"), "col(x)"},
		{Lit(nil), "lit(null)"},
		{Lit("s"), "lit(s)"},
		{Col("x").Ne(Lit(2)), "(col(x) != lit(2))"},
		{Div(Col("x"), Col("y")), "(col(x) / col(y))"},
		{Col("x").Ge(Lit(1)).And(Col("y").Le(Lit(2))), "((col(x) >= lit(1)) && (col(y) <= lit(2)))"},
		{Col("x").Lt(Lit(1)).Or(Col("x").Eq(Lit(9))), "((col(x) < lit(1)) || (col(x) == lit(9)))"},
		{Not(Col("b")), "!(col(b))"},
		{Col("x").IsNull(), "is_null(col(x))"},
		{Col("x").IsNotNull(), "is_not_null(col(x))"},
		{Col("x").Sum(), "sum(col(x))"},
		{Col("x").NullCount().As("n"), "null_count(col(x)).alias(n)"},
		{Alias(Col("x").Mean(), "m"), "mean(col(x)).alias(m)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.expr.String())
	}

	assert.True(t, OpEq.IsComparison())
	assert.False(t, OpAnd.IsComparison())
	assert.True(t, OpOr.IsLogical())
	assert.False(t, OpAdd.IsLogical())
}

func TestPlanner(t *testing.T) {
	planner := NewPlanner(memory.NewGoAllocator(), nil)

	node, err := planner.Plan(Alias(When(Col("a").Gt(Lit(1))).Then(Col("a").Sum()).Otherwise(Lit(nil)), "out"))
	require.NoError(t, err)
	assert.IsType(t, &AliasNode{}, node)
	assert.Equal(t, "out", node.AsExpression().(*AliasExpr).Name())

	node, err = planner.Plan(When(Col("a")).Then(Col("b")).Otherwise(Col("c")))
	require.NoError(t, err)
	assert.IsType(t, &TernaryExpr{}, node)

	_, err = planner.Plan(nil)
	assert.Error(t, err)

	_, err = planner.Plan(Lit(struct{}{}))
	assert.Error(t, err)

	_, err = planner.Plan(When(Col("a")).Then(Lit([]int{1})).Otherwise(Lit(1)))
	assert.Error(t, err)
}
