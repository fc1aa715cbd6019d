package expr

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkedAllocator fails the test if any buffer is still alive once the
// test and its deferred releases are done
func checkedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

func newFrame(t *testing.T, cols ...*series.Column) *dataframe.DataFrame {
	t.Helper()
	df, err := dataframe.New(cols...)
	require.NoError(t, err)
	return df
}

func mustPlan(t *testing.T, mem memory.Allocator, e Expr) PhysicalExpr {
	t.Helper()
	node, err := NewPlanner(mem, nil).Plan(e)
	require.NoError(t, err)
	return node
}

func evaluateOnGroups(t *testing.T, mem memory.Allocator, e Expr, df *dataframe.DataFrame, p *groups.Partition) *AggregationContext {
	t.Helper()
	ac, err := mustPlan(t, mem, e).EvaluateOnGroups(df, p, NewExecutionState())
	require.NoError(t, err)
	return ac
}

func flattened(t *testing.T, ac *AggregationContext) []interface{} {
	t.Helper()
	col, err := ac.Flatten()
	require.NoError(t, err)
	defer col.Release()
	return col.Values()
}

func list(values ...interface{}) []interface{} {
	if values == nil {
		return []interface{}{}
	}
	return values
}

// assertInvariant fails unless fn panics with an invariant violation
func assertInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		_, ok := r.(*errors.InvariantError)
		assert.True(t, ok, "expected an invariant violation, got %v", r)
	}()
	fn()
}

// fixedExpr hands out a prepared aggregation state
type fixedExpr struct {
	kind      AggStateKind
	col       *series.Column
	partition *groups.Partition
}

func (f *fixedExpr) Evaluate(_ *dataframe.DataFrame, _ *ExecutionState) (*series.Column, error) {
	f.col.Retain()
	return f.col, nil
}

func (f *fixedExpr) EvaluateOnGroups(_ *dataframe.DataFrame, p *groups.Partition, _ *ExecutionState) (*AggregationContext, error) {
	if f.partition != nil {
		p = f.partition
	}
	f.col.Retain()
	return NewAggregationContext(memory.NewGoAllocator(), p, f.kind, f.col), nil
}

func (f *fixedExpr) ToField(_ *arrow.Schema) (arrow.Field, error) {
	return arrow.Field{Name: f.col.Name(), Type: f.col.DataType(), Nullable: true}, nil
}

func (f *fixedExpr) AsExpression() Expr {
	return Col(f.col.Name())
}

func (f *fixedExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}
