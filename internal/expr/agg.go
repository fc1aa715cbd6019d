package expr

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/series"
	"golang.org/x/exp/constraints"
)

// AggNode reduces its child to one value per group
type AggNode struct {
	child   PhysicalExpr
	aggType AggregationType
	expr    Expr
	mem     memory.Allocator
}

// NewAggNode creates an aggregation node
func NewAggNode(child PhysicalExpr, aggType AggregationType, e Expr, mem memory.Allocator) *AggNode {
	return &AggNode{child: child, aggType: aggType, expr: e, mem: mem}
}

// Evaluate reduces the whole table to a single row
func (a *AggNode) Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error) {
	col, err := a.child.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	defer col.Release()

	if a.aggType == AggList {
		return series.AggList(a.mem, col, groups.Single(col.Len()))
	}

	values, err := col.Rechunk(a.mem)
	if err != nil {
		return nil, err
	}
	defer values.Release()
	return reduce(a.mem, a.aggType, col.Name(), values, []series.Span{{Length: values.Len()}})
}

func (a *AggNode) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	ac, err := a.child.EvaluateOnGroups(df, p, state)
	if err != nil {
		return nil, err
	}
	if ac.Kind() == GroupScalar {
		name := ac.Column().Name()
		ac.Release()
		return nil, errors.NewComputeError(a.aggType.String(),
			fmt.Sprintf("cannot aggregate %s, it already holds one value per group", name))
	}

	lists, err := ac.Aggregated()
	if err != nil {
		ac.Release()
		return nil, err
	}
	if a.aggType == AggList {
		return ac.WithColumn(lists, true, false), nil
	}
	defer lists.Release()

	out, err := reduceLists(a.mem, a.aggType, lists)
	if err != nil {
		ac.Release()
		return nil, err
	}
	return ac.WithColumn(out, true, false), nil
}

func (a *AggNode) ToField(schema *arrow.Schema) (arrow.Field, error) {
	field, err := a.child.ToField(schema)
	if err != nil {
		return arrow.Field{}, err
	}
	field.Nullable = true
	field.Type = aggOutputType(a.aggType, field.Type)
	return field, nil
}

func (a *AggNode) AsExpression() Expr {
	return a.expr
}

// AsPartitionedAggregator returns nil for mean and list, whose partials
// cannot be combined without extra state.
func (a *AggNode) AsPartitionedAggregator() PartitionedAggregation {
	if a.aggType == AggMean || a.aggType == AggList {
		return nil
	}
	return a
}

func (a *AggNode) EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	ac, err := a.EvaluateOnGroups(df, p, state)
	if err != nil {
		return nil, err
	}
	return ac.Column(), nil
}

// Finalize re-aggregates partial results per group of p: sums and counts
// add up, min and max combine, first and last keep their position.
func (a *AggNode) Finalize(partial *series.Column, p *groups.Partition, _ *ExecutionState) (*series.Column, error) {
	merge := a.aggType
	switch a.aggType {
	case AggCount, AggNullCount:
		merge = AggSum
	}

	lists, err := series.AggList(a.mem, partial, p)
	if err != nil {
		return nil, err
	}
	defer lists.Release()
	return reduceLists(a.mem, merge, lists)
}

func aggOutputType(aggType AggregationType, input arrow.DataType) arrow.DataType {
	switch aggType {
	case AggCount, AggNullCount:
		return arrow.PrimitiveTypes.Int64
	case AggMean:
		if input.ID() == arrow.NULL {
			return arrow.Null
		}
		return arrow.PrimitiveTypes.Float64
	case AggSum:
		switch {
		case input.ID() == arrow.NULL:
			return arrow.Null
		case isIntegerType(input):
			return arrow.PrimitiveTypes.Int64
		default:
			return arrow.PrimitiveTypes.Float64
		}
	case AggList:
		return arrow.ListOf(input)
	default:
		return input
	}
}

// reduceLists applies the aggregation to every list of a list column. A null
// list reduces to null, an empty one like a group without rows.
func reduceLists(mem memory.Allocator, aggType AggregationType, lists *series.Column) (*series.Column, error) {
	list, err := lists.List(mem)
	if err != nil {
		return nil, err
	}
	defer list.Release()

	lengths := series.ListLengths(list)
	spans := make([]series.Span, list.Len())
	for i := range spans {
		start, _ := list.ValueOffsets(i)
		spans[i] = series.Span{Offset: int(start), Length: lengths[i]}
	}
	return reduce(mem, aggType, lists.Name(), list.ListValues(), spans)
}

// reduce computes one output value per span of values. A span of negative
// length is a missing group and yields null.
func reduce(mem memory.Allocator, aggType AggregationType, name string, values arrow.Array, spans []series.Span) (*series.Column, error) {
	switch aggType {
	case AggCount, AggNullCount:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, s := range spans {
			if s.Length < 0 {
				b.AppendNull()
				continue
			}
			n := s.Length
			if aggType == AggNullCount {
				n = 0
				for i := s.Offset; i < s.Offset+s.Length; i++ {
					if values.IsNull(i) {
						n++
					}
				}
			}
			b.Append(int64(n))
		}
		return series.FromArray(name, b.NewArray()), nil

	case AggFirst, AggLast:
		indices := make([]int, len(spans))
		for g, s := range spans {
			switch {
			case s.Length <= 0:
				indices[g] = -1
			case aggType == AggFirst:
				indices[g] = s.Offset
			default:
				indices[g] = s.Offset + s.Length - 1
			}
		}
		return takeFrom(mem, name, values, indices)
	}

	if values.DataType().ID() == arrow.NULL {
		return series.NewNull(name, len(spans)), nil
	}

	switch aggType {
	case AggMin, AggMax:
		less, ok := newLess(values)
		if !ok {
			return nil, errors.NewUnsupportedTypeError(aggType.String(), values.DataType().String())
		}
		indices := make([]int, len(spans))
		for g, s := range spans {
			indices[g] = extremeIndex(values, s, less, aggType == AggMax)
		}
		return takeFrom(mem, name, values, indices)

	case AggSum, AggMean:
		reader, ok := newNumericReader(values)
		if !ok {
			return nil, errors.NewUnsupportedTypeError(aggType.String(), values.DataType().String())
		}
		if aggType == AggSum && reader.isInt {
			out := array.NewInt64Builder(mem)
			defer out.Release()
			sumSpans(values, spans, reader.asInt, out)
			return series.FromArray(name, out.NewArray()), nil
		}

		out := array.NewFloat64Builder(mem)
		defer out.Release()
		if aggType == AggSum {
			sumSpans(values, spans, reader.asFloat, out)
		} else {
			meanSpans(values, spans, reader.asFloat, out)
		}
		return series.FromArray(name, out.NewArray()), nil

	default:
		return nil, errors.NewInvalidInputError("aggregate", fmt.Sprintf("unsupported aggregation %s", aggType))
	}
}

type numericBuilder[T constraints.Integer | constraints.Float] interface {
	Append(T)
	AppendNull()
}

func sumSpans[T constraints.Integer | constraints.Float](values arrow.Array, spans []series.Span, read func(int) T, out numericBuilder[T]) {
	for _, s := range spans {
		var sum T
		valid := 0
		for i := s.Offset; i < s.Offset+s.Length; i++ {
			if values.IsNull(i) {
				continue
			}
			sum += read(i)
			valid++
		}
		if valid == 0 {
			out.AppendNull()
			continue
		}
		out.Append(sum)
	}
}

func meanSpans(values arrow.Array, spans []series.Span, read func(int) float64, out numericBuilder[float64]) {
	for _, s := range spans {
		var sum float64
		valid := 0
		for i := s.Offset; i < s.Offset+s.Length; i++ {
			if values.IsNull(i) {
				continue
			}
			sum += read(i)
			valid++
		}
		if valid == 0 {
			out.AppendNull()
			continue
		}
		out.Append(sum / float64(valid))
	}
}

// extremeIndex returns the index of the smallest (or largest) valid value
// of the span, -1 when there is none. Ties keep the earliest index.
func extremeIndex(values arrow.Array, s series.Span, less func(i, j int) bool, largest bool) int {
	best := -1
	for i := s.Offset; i < s.Offset+s.Length; i++ {
		if values.IsNull(i) {
			continue
		}
		switch {
		case best < 0:
			best = i
		case largest && less(best, i), !largest && less(i, best):
			best = i
		}
	}
	return best
}

func takeFrom(mem memory.Allocator, name string, values arrow.Array, indices []int) (*series.Column, error) {
	values.Retain()
	src := series.FromArray(name, values)
	defer src.Release()
	return series.Take(mem, src, indices)
}

func newLess(arr arrow.Array) (func(i, j int) bool, bool) {
	if reader, ok := newNumericReader(arr); ok {
		if reader.isInt {
			return func(i, j int) bool { return reader.asInt(i) < reader.asInt(j) }, true
		}
		return func(i, j int) bool { return reader.asFloat(i) < reader.asFloat(j) }, true
	}
	if read, ok := newStringReader(arr); ok {
		return func(i, j int) bool { return read(i) < read(j) }, true
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return func(i, j int) bool { return !a.Value(i) && a.Value(j) }, true
	case *array.Date32:
		return orderedLess(a.Date32Values()), true
	case *array.Date64:
		return orderedLess(a.Date64Values()), true
	case *array.Timestamp:
		return orderedLess(a.TimestampValues()), true
	default:
		return nil, false
	}
}

func orderedLess[T constraints.Ordered](values []T) func(i, j int) bool {
	return func(i, j int) bool { return values[i] < values[j] }
}
