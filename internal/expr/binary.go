package expr

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/series"
)

// BinaryNode applies a comparison, logical or arithmetic operator
type BinaryNode struct {
	left  PhysicalExpr
	right PhysicalExpr
	op    BinaryOp
	expr  Expr
	mem   memory.Allocator
	pool  *parallel.Pool
	eval  *Evaluator
}

// NewBinaryNode creates a binary node
func NewBinaryNode(left PhysicalExpr, op BinaryOp, right PhysicalExpr, e Expr, mem memory.Allocator, pool *parallel.Pool) *BinaryNode {
	return &BinaryNode{left: left, right: right, op: op, expr: e, mem: mem, pool: pool, eval: NewEvaluator(mem)}
}

func (b *BinaryNode) Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error) {
	var left, right *series.Column
	err := b.pool.Join(
		func() (err error) {
			left, err = b.left.Evaluate(df, state)
			return err
		},
		func() (err error) {
			right, err = b.right.Evaluate(df, state)
			return err
		},
	)
	if err != nil {
		releaseColumns(left, right)
		return nil, err
	}
	defer left.Release()
	defer right.Release()
	return b.apply(left, right)
}

func (b *BinaryNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	var acLeft, acRight *AggregationContext
	err := b.pool.Join(
		func() (err error) {
			acLeft, err = b.left.EvaluateOnGroups(df, p, state)
			return err
		},
		func() (err error) {
			acRight, err = b.right.EvaluateOnGroups(df, p, state)
			return err
		},
	)
	if err != nil {
		releaseContexts(acLeft, acRight)
		return nil, err
	}
	defer acRight.Release()
	if !acLeft.CanCombine(acRight) {
		errors.Invariant("binary", "operands of %s refer to different groups", b.expr)
	}

	out, kind, err := b.combine(acLeft, acRight)
	if err != nil {
		acLeft.Release()
		return nil, err
	}
	return acLeft.WithState(kind, out), nil
}

// combine applies the operator at the level both states share
func (b *BinaryNode) combine(acLeft, acRight *AggregationContext) (*series.Column, AggStateKind, error) {
	lk, rk := acLeft.Kind(), acRight.Kind()
	var kind AggStateKind
	switch {
	case lk == Constant && rk == Constant:
		kind = Constant
	case lk == RowLevel && (rk == RowLevel || rk == Constant), lk == Constant && rk == RowLevel:
		kind = RowLevel
	case lk == GroupScalar && (rk == GroupScalar || rk == Constant), lk == Constant && rk == GroupScalar:
		kind = GroupScalar
	default:
		left, err := acLeft.Flatten()
		if err != nil {
			return nil, RowLevel, err
		}
		defer left.Release()
		right, err := acRight.Flatten()
		if err != nil {
			return nil, RowLevel, err
		}
		defer right.Release()

		out, err := b.apply(left, right)
		return out, RowLevel, err
	}

	out, err := b.apply(acLeft.Column(), acRight.Column())
	return out, kind, err
}

func (b *BinaryNode) apply(left, right *series.Column) (*series.Column, error) {
	l, err := left.Rechunk(b.mem)
	if err != nil {
		return nil, err
	}
	defer l.Release()
	r, err := right.Rechunk(b.mem)
	if err != nil {
		return nil, err
	}
	defer r.Release()

	out, err := b.eval.Binary(l, r, b.op)
	if err != nil {
		return nil, err
	}
	return series.FromArray(left.Name(), out), nil
}

func (b *BinaryNode) ToField(schema *arrow.Schema) (arrow.Field, error) {
	left, err := b.left.ToField(schema)
	if err != nil {
		return arrow.Field{}, err
	}
	right, err := b.right.ToField(schema)
	if err != nil {
		return arrow.Field{}, err
	}

	field := arrow.Field{Name: left.Name, Nullable: true}
	switch {
	case b.op.IsComparison(), b.op.IsLogical():
		field.Type = arrow.FixedWidthTypes.Boolean
	case left.Type.ID() == arrow.NULL || right.Type.ID() == arrow.NULL:
		field.Type = arrow.Null
	case b.op != OpDiv && isIntegerType(left.Type) && isIntegerType(right.Type):
		field.Type = arrow.PrimitiveTypes.Int64
	default:
		field.Type = arrow.PrimitiveTypes.Float64
	}
	return field, nil
}

func (b *BinaryNode) AsExpression() Expr {
	return b.expr
}

// AsPartitionedAggregator supports partitioned evaluation when both operands
// do. The partials are final because a group never spans partitions.
func (b *BinaryNode) AsPartitionedAggregator() PartitionedAggregation {
	if !SupportsPartitioned(b.left) || !SupportsPartitioned(b.right) {
		return nil
	}
	return b
}

func (b *BinaryNode) EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	var left, right *series.Column
	err := b.pool.Join(
		func() (err error) {
			left, err = b.left.AsPartitionedAggregator().EvaluatePartitioned(df, p, state)
			return err
		},
		func() (err error) {
			right, err = b.right.AsPartitionedAggregator().EvaluatePartitioned(df, p, state)
			return err
		},
	)
	if err != nil {
		releaseColumns(left, right)
		return nil, err
	}
	defer left.Release()
	defer right.Release()
	return b.apply(left, right)
}

func (b *BinaryNode) Finalize(partial *series.Column, _ *groups.Partition, _ *ExecutionState) (*series.Column, error) {
	partial.Retain()
	return partial, nil
}

func isIntegerType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return true
	default:
		return false
	}
}

// UnaryNode applies Not, IsNull or IsNotNull, keeping the aggregation state
type UnaryNode struct {
	child PhysicalExpr
	op    UnaryOp
	expr  Expr
	mem   memory.Allocator
	eval  *Evaluator
}

// NewUnaryNode creates a unary node
func NewUnaryNode(child PhysicalExpr, op UnaryOp, e Expr, mem memory.Allocator) *UnaryNode {
	return &UnaryNode{child: child, op: op, expr: e, mem: mem, eval: NewEvaluator(mem)}
}

func (u *UnaryNode) Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error) {
	col, err := u.child.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	defer col.Release()
	return u.apply(col)
}

func (u *UnaryNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	ac, err := u.child.EvaluateOnGroups(df, p, state)
	if err != nil {
		return nil, err
	}

	if ac.Kind() != GroupList {
		out, err := u.apply(ac.Column())
		if err != nil {
			ac.Release()
			return nil, err
		}
		return ac.WithState(ac.Kind(), out), nil
	}

	list, err := ac.Column().List(u.mem)
	if err != nil {
		ac.Release()
		return nil, err
	}
	defer list.Release()
	values, err := u.eval.Unary(list.ListValues(), u.op)
	if err != nil {
		ac.Release()
		return nil, err
	}
	defer values.Release()

	update := ac.UpdateGroups()
	return ac.WithColumn(series.MapListValues(ac.Column().Name(), list, values), true, update), nil
}

func (u *UnaryNode) apply(col *series.Column) (*series.Column, error) {
	arr, err := col.Rechunk(u.mem)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	out, err := u.eval.Unary(arr, u.op)
	if err != nil {
		return nil, err
	}
	return series.FromArray(col.Name(), out), nil
}

func (u *UnaryNode) ToField(schema *arrow.Schema) (arrow.Field, error) {
	field, err := u.child.ToField(schema)
	if err != nil {
		return arrow.Field{}, err
	}
	field.Type = arrow.FixedWidthTypes.Boolean
	return field, nil
}

func (u *UnaryNode) AsExpression() Expr {
	return u.expr
}

func (u *UnaryNode) AsPartitionedAggregator() PartitionedAggregation {
	if !SupportsPartitioned(u.child) {
		return nil
	}
	return u
}

func (u *UnaryNode) EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	col, err := u.child.AsPartitionedAggregator().EvaluatePartitioned(df, p, state)
	if err != nil {
		return nil, err
	}
	defer col.Release()
	return u.apply(col)
}

func (u *UnaryNode) Finalize(partial *series.Column, _ *groups.Partition, _ *ExecutionState) (*series.Column, error) {
	partial.Retain()
	return partial, nil
}
