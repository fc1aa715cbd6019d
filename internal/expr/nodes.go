package expr

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/series"
)

// LiteralName is the output name of a literal
const LiteralName = "literal"

// ColumnNode reads a column of the input table
type ColumnNode struct {
	name string
	expr Expr
	mem  memory.Allocator
}

// NewColumnNode creates a column node
func NewColumnNode(e *ColumnExpr, mem memory.Allocator) *ColumnNode {
	return &ColumnNode{name: e.Name(), expr: e, mem: mem}
}

func (c *ColumnNode) Evaluate(df *dataframe.DataFrame, _ *ExecutionState) (*series.Column, error) {
	col, ok := df.Column(c.name)
	if !ok {
		return nil, errors.NewColumnNotFoundError("col", c.name)
	}
	col.Retain()
	return col, nil
}

func (c *ColumnNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	col, err := c.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	return NewAggregationContext(c.mem, p, RowLevel, col), nil
}

func (c *ColumnNode) ToField(schema *arrow.Schema) (arrow.Field, error) {
	indices := schema.FieldIndices(c.name)
	if len(indices) == 0 {
		return arrow.Field{}, errors.NewColumnNotFoundError("col", c.name)
	}
	return schema.Field(indices[0]), nil
}

func (c *ColumnNode) AsExpression() Expr {
	return c.expr
}

// AsPartitionedAggregator returns nil: a bare column has one value per row,
// not per group.
func (c *ColumnNode) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

// LiteralNode produces a single value that broadcasts against any length
type LiteralNode struct {
	value interface{}
	expr  Expr
	mem   memory.Allocator
}

// NewLiteralNode creates a literal node
func NewLiteralNode(e *LiteralExpr, mem memory.Allocator) *LiteralNode {
	return &LiteralNode{value: e.Value(), expr: e, mem: mem}
}

func (l *LiteralNode) Evaluate(_ *dataframe.DataFrame, _ *ExecutionState) (*series.Column, error) {
	return literalColumn(l.mem, l.value)
}

func (l *LiteralNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	col, err := l.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	return NewAggregationContext(l.mem, p, Constant, col), nil
}

func (l *LiteralNode) ToField(_ *arrow.Schema) (arrow.Field, error) {
	dt, err := literalType(l.value)
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: LiteralName, Type: dt, Nullable: true}, nil
}

func (l *LiteralNode) AsExpression() Expr {
	return l.expr
}

func (l *LiteralNode) AsPartitionedAggregator() PartitionedAggregation {
	return l
}

func (l *LiteralNode) EvaluatePartitioned(df *dataframe.DataFrame, _ *groups.Partition, state *ExecutionState) (*series.Column, error) {
	return l.Evaluate(df, state)
}

func (l *LiteralNode) Finalize(partial *series.Column, _ *groups.Partition, _ *ExecutionState) (*series.Column, error) {
	partial.Retain()
	return partial, nil
}

func literalType(value interface{}) (arrow.DataType, error) {
	switch value.(type) {
	case nil:
		return arrow.Null, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int, int64:
		return arrow.PrimitiveTypes.Int64, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case float32:
		return arrow.PrimitiveTypes.Float32, nil
	case string:
		return arrow.BinaryTypes.String, nil
	case time.Time:
		return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}, nil
	default:
		return nil, errors.NewUnsupportedTypeError("lit", fmt.Sprintf("%T", value))
	}
}

func literalColumn(mem memory.Allocator, value interface{}) (*series.Column, error) {
	switch v := value.(type) {
	case nil:
		return series.FromArray(LiteralName, array.NewNull(1)), nil
	case bool:
		return series.New(LiteralName, []bool{v}, mem), nil
	case int:
		return series.New(LiteralName, []int64{int64(v)}, mem), nil
	case int64:
		return series.New(LiteralName, []int64{v}, mem), nil
	case int32:
		return series.New(LiteralName, []int32{v}, mem), nil
	case float64:
		return series.New(LiteralName, []float64{v}, mem), nil
	case float32:
		return series.New(LiteralName, []float32{v}, mem), nil
	case string:
		return series.New(LiteralName, []string{v}, mem), nil
	case time.Time:
		return series.New(LiteralName, []time.Time{v}, mem), nil
	default:
		return nil, errors.NewUnsupportedTypeError("lit", fmt.Sprintf("%T", value))
	}
}

// AliasNode renames the output of its child
type AliasNode struct {
	child PhysicalExpr
	name  string
	expr  Expr
}

// NewAliasNode creates an alias node
func NewAliasNode(child PhysicalExpr, e *AliasExpr) *AliasNode {
	return &AliasNode{child: child, name: e.Name(), expr: e}
}

func (a *AliasNode) Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error) {
	col, err := a.child.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	return renamed(col, a.name), nil
}

func (a *AliasNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	ac, err := a.child.EvaluateOnGroups(df, p, state)
	if err != nil {
		return nil, err
	}
	update := ac.UpdateGroups()
	col := ac.Column()
	col.Retain()
	ac.WithState(ac.Kind(), renamed(col, a.name))
	ac.updateGroups = update
	return ac, nil
}

func (a *AliasNode) ToField(schema *arrow.Schema) (arrow.Field, error) {
	field, err := a.child.ToField(schema)
	if err != nil {
		return arrow.Field{}, err
	}
	field.Name = a.name
	return field, nil
}

func (a *AliasNode) AsExpression() Expr {
	return a.expr
}

func (a *AliasNode) AsPartitionedAggregator() PartitionedAggregation {
	if !SupportsPartitioned(a.child) {
		return nil
	}
	return a
}

func (a *AliasNode) EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	col, err := a.child.AsPartitionedAggregator().EvaluatePartitioned(df, p, state)
	if err != nil {
		return nil, err
	}
	return renamed(col, a.name), nil
}

func (a *AliasNode) Finalize(partial *series.Column, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	col, err := a.child.AsPartitionedAggregator().Finalize(partial, p, state)
	if err != nil {
		return nil, err
	}
	return renamed(col, a.name), nil
}

// renamed returns col under name, giving up the caller's reference to col
func renamed(col *series.Column, name string) *series.Column {
	if col.Name() == name {
		return col
	}
	out := col.Rename(name)
	col.Release()
	return out
}
