package expr

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/logutil"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/series"
	"go.uber.org/zap"
)

// TernaryExpr selects between a truthy and a falsy child under a boolean
// predicate. Chained conditions are nested TernaryExpr nodes.
type TernaryExpr struct {
	predicate PhysicalExpr
	truthy    PhysicalExpr
	falsy     PhysicalExpr
	expr      Expr
	mem       memory.Allocator
	pool      *parallel.Pool
}

// NewTernaryExpr creates a ternary node. Children run on pool.
func NewTernaryExpr(predicate, truthy, falsy PhysicalExpr, e Expr, mem memory.Allocator, pool *parallel.Pool) *TernaryExpr {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &TernaryExpr{
		predicate: predicate,
		truthy:    truthy,
		falsy:     falsy,
		expr:      e,
		mem:       mem,
		pool:      pool,
	}
}

// Evaluate computes the selection row-wise. The predicate runs first so a
// non boolean predicate fails before any branch work; the branches then run
// concurrently.
func (t *TernaryExpr) Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error) {
	mask, err := t.predicate.Evaluate(df, state)
	if err != nil {
		return nil, err
	}
	defer mask.Release()
	if err := checkMaskType(mask.DataType()); err != nil {
		return nil, err
	}

	var truthy, falsy *series.Column
	err = t.pool.Join(
		func() (err error) {
			truthy, err = t.truthy.Evaluate(df, state)
			return err
		},
		func() (err error) {
			falsy, err = t.falsy.Evaluate(df, state)
			return err
		},
	)
	if err != nil {
		releaseColumns(truthy, falsy)
		return nil, err
	}
	defer truthy.Release()
	defer falsy.Release()

	return t.zip(truthy, falsy, mask)
}

// zip aligns and zips three columns
func (t *TernaryExpr) zip(truthy, falsy, mask *series.Column) (*series.Column, error) {
	tt, ff, mm, err := ExpandLengths(t.mem, truthy, falsy, mask)
	if err != nil {
		return nil, err
	}
	defer tt.Release()
	defer ff.Release()
	defer mm.Release()
	return series.ZipWith(t.mem, mm, tt, ff)
}

// EvaluateOnGroups computes the selection for every group. The result
// depends on the aggregation states of the three children:
//
//   - all reduced to one value per group (or both branches lists) under a
//     per-group predicate: zip the group level columns directly
//   - truthy one value per group, falsy per row: zip inside every group,
//     broadcasting the group's truthy value, giving a list per group
//   - the mirror case with falsy one value per group
//   - anything else: flatten to rows and zip over the whole table
//
// The result reuses the truthy context; the other two are released.
func (t *TernaryExpr) EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error) {
	var acMask, acTruthy, acFalsy *AggregationContext
	err := t.pool.Join(
		func() (err error) {
			acMask, err = t.predicate.EvaluateOnGroups(df, p, state)
			return err
		},
		func() (err error) {
			acTruthy, err = t.truthy.EvaluateOnGroups(df, p, state)
			return err
		},
		func() (err error) {
			acFalsy, err = t.falsy.EvaluateOnGroups(df, p, state)
			return err
		},
	)
	if err != nil {
		releaseContexts(acMask, acTruthy, acFalsy)
		return nil, err
	}
	defer acMask.Release()
	defer acFalsy.Release()

	if !acTruthy.CanCombine(acFalsy) {
		errors.Invariant("ternary", "truthy and falsy of %s refer to different groups", t.expr)
	}
	ac, err := t.combine(acTruthy, acFalsy, acMask)
	if err != nil {
		acTruthy.Release()
		return nil, err
	}
	return ac, nil
}

// combine picks the strategy for the states of the three children
func (t *TernaryExpr) combine(acTruthy, acFalsy, acMask *AggregationContext) (*AggregationContext, error) {
	if err := checkMaskType(series.ElemType(acMask.Column().DataType())); err != nil {
		return nil, err
	}

	p := acTruthy.Partition()
	tk, fk, mk := acTruthy.Kind(), acFalsy.Kind(), acMask.Kind()
	height := p.Height()
	reduced := func(k AggStateKind) bool { return k == Constant || k == GroupScalar }

	switch {
	case mk == GroupScalar && (reduced(tk) && reduced(fk) || tk == GroupList && fk == GroupList):
		logutil.Debug("ternary on groups", zap.String("strategy", "group level"), zap.Int("groups", p.Len()))
		out, err := t.zip(acTruthy.Column(), acFalsy.Column(), acMask.Column())
		if err != nil {
			return nil, err
		}
		return acTruthy.WithColumn(out, true, false), nil

	case tk == GroupScalar && (fk == RowLevel || fk == Constant) && acTruthy.Column().Len() != height:
		logutil.Debug("ternary on groups", zap.String("strategy", "truthy per group"), zap.Int("groups", p.Len()))
		out, err := t.zipPerGroup(acTruthy, acFalsy, acMask, true)
		if err != nil {
			return nil, err
		}
		return acTruthy.WithColumn(out, true, true), nil

	case fk == GroupScalar && (tk == RowLevel || tk == Constant) && acFalsy.Column().Len() != height:
		logutil.Debug("ternary on groups", zap.String("strategy", "falsy per group"), zap.Int("groups", p.Len()))
		out, err := t.zipPerGroup(acFalsy, acTruthy, acMask, false)
		if err != nil {
			return nil, err
		}
		return acTruthy.WithColumn(out, true, true), nil

	default:
		logutil.Debug("ternary on groups", zap.String("strategy", "row level"), zap.Int("rows", height))
		out, err := t.zipFlat(acTruthy, acFalsy, acMask)
		if err != nil {
			return nil, err
		}
		if out.Len() != height {
			produced := out.Len()
			out.Release()
			errors.Invariant("ternary", "produced %d rows, expected %d", produced, height)
		}
		return acTruthy.WithColumn(out, false, false), nil
	}
}

// zipFlat flattens all three states to rows and zips them
func (t *TernaryExpr) zipFlat(acTruthy, acFalsy, acMask *AggregationContext) (*series.Column, error) {
	mask, err := acMask.Flatten()
	if err != nil {
		return nil, err
	}
	defer mask.Release()
	truthy, err := acTruthy.Flatten()
	if err != nil {
		return nil, err
	}
	defer truthy.Release()
	falsy, err := acFalsy.Flatten()
	if err != nil {
		return nil, err
	}
	defer falsy.Release()

	return t.zip(truthy, falsy, mask)
}

// zipPerGroup zips, group by group, a branch holding one value per group
// against a branch reduced to one list per group. The single value is
// broadcast across the group through a view rebound for each group. A group
// whose list or mask is missing or empty yields null. The result is named
// after the truthy branch.
func (t *TernaryExpr) zipPerGroup(acScalar, acRows, acMask *AggregationContext, scalarIsTruthy bool) (*series.Column, error) {
	scalarCol := acScalar.Column()
	scalar, err := scalarCol.Rechunk(t.mem)
	if err != nil {
		return nil, err
	}
	defer scalar.Release()

	rowLists, err := acRows.Aggregated()
	if err != nil {
		return nil, err
	}
	defer rowLists.Release()
	lists, err := rowLists.List(t.mem)
	if err != nil {
		return nil, err
	}
	defer lists.Release()

	mask, err := newGroupMask(t.mem, acMask)
	if err != nil {
		return nil, err
	}
	defer mask.release()

	name := rowLists.Name()
	truthyType, falsyType := scalar.DataType(), lists.ListValues().DataType()
	if scalarIsTruthy {
		name = scalarCol.Name()
	} else {
		truthyType, falsyType = falsyType, truthyType
	}
	outType, err := series.ZipType(truthyType, falsyType)
	if err != nil {
		return nil, err
	}

	lb := array.NewListBuilder(t.mem, outType)
	defer lb.Release()
	lb.Reserve(scalar.Len())

	var z *series.Zipper
	if scalarIsTruthy {
		z, err = series.NewZipper(lb.ValueBuilder(), mask.values, scalar, lists.ListValues())
	} else {
		z, err = series.NewZipper(lb.ValueBuilder(), mask.values, lists.ListValues(), scalar)
	}
	if err != nil {
		return nil, err
	}

	view := series.NewView(scalar)
	for g := 0; g < scalar.Len(); g++ {
		maskSpan, ok := mask.span(g)
		if !ok || lists.IsNull(g) {
			lb.AppendNull()
			continue
		}
		start, end := lists.ValueOffsets(g)
		rows := series.Span{Offset: int(start), Length: int(end - start)}
		if rows.Length == 0 || maskSpan.Length == 0 {
			lb.AppendNull()
			continue
		}

		lb.Append(true)
		err := view.With(g, func(s series.Span) error {
			if scalarIsTruthy {
				return z.Zip(maskSpan, s, rows)
			}
			return z.Zip(maskSpan, rows, s)
		})
		if err != nil {
			return nil, err
		}
	}

	return series.FromArray(name, lb.NewArray()), nil
}

// groupMask gives the predicate of one group as a span over a boolean array:
// a list per group, or a single value per group that broadcasts.
type groupMask struct {
	values *array.Boolean
	lists  *array.List
}

func newGroupMask(mem memory.Allocator, ac *AggregationContext) (*groupMask, error) {
	if ac.Kind() == GroupScalar {
		values, err := ac.Column().Bool(mem)
		if err != nil {
			return nil, err
		}
		return &groupMask{values: values}, nil
	}

	col, err := ac.Aggregated()
	if err != nil {
		return nil, err
	}
	defer col.Release()
	lists, err := col.List(mem)
	if err != nil {
		return nil, err
	}

	values, ok := lists.ListValues().(*array.Boolean)
	if !ok {
		// a Null typed predicate never selects the truthy branch
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendNulls(lists.ListValues().Len())
		values = b.NewBooleanArray()
	} else {
		values.Retain()
	}
	return &groupMask{values: values, lists: lists}, nil
}

func (m *groupMask) span(g int) (series.Span, bool) {
	if m.lists == nil {
		return series.Span{Offset: g, Length: 1}, true
	}
	if m.lists.IsNull(g) {
		return series.Span{}, false
	}
	start, end := m.lists.ValueOffsets(g)
	return series.Span{Offset: int(start), Length: int(end - start)}, true
}

func (m *groupMask) release() {
	m.values.Release()
	if m.lists != nil {
		m.lists.Release()
	}
}

func checkMaskType(dt arrow.DataType) error {
	switch dt.ID() {
	case arrow.BOOL, arrow.NULL:
		return nil
	default:
		return errors.NewTypeMismatchError("when", "predicate of type bool", dt.String())
	}
}

// ToField takes the field of the truthy branch, whatever the falsy type
func (t *TernaryExpr) ToField(schema *arrow.Schema) (arrow.Field, error) {
	return t.truthy.ToField(schema)
}

func (t *TernaryExpr) AsExpression() Expr {
	return t.expr
}

// AsPartitionedAggregator returns the node itself. Every child must support
// partitioned evaluation by the time EvaluatePartitioned runs.
func (t *TernaryExpr) AsPartitionedAggregator() PartitionedAggregation {
	return t
}

// EvaluatePartitioned evaluates every child on the partition and zips the
// partial results.
func (t *TernaryExpr) EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error) {
	children := []PhysicalExpr{t.predicate, t.truthy, t.falsy}
	aggs := make([]PartitionedAggregation, len(children))
	for i, child := range children {
		aggs[i] = child.AsPartitionedAggregator()
		if aggs[i] == nil {
			errors.Invariant("ternary", "%s cannot be evaluated per partition", child.AsExpression())
		}
	}

	cols := make([]*series.Column, len(children))
	task := func(i int) func() error {
		return func() (err error) {
			cols[i], err = aggs[i].EvaluatePartitioned(df, p, state)
			return err
		}
	}
	if err := t.pool.Join(task(0), task(1), task(2)); err != nil {
		releaseColumns(cols...)
		return nil, err
	}
	for _, col := range cols {
		defer col.Release()
	}

	if err := checkMaskType(cols[0].DataType()); err != nil {
		return nil, err
	}
	return t.zip(cols[1], cols[2], cols[0])
}

// Finalize returns the partial result unchanged
func (t *TernaryExpr) Finalize(partial *series.Column, _ *groups.Partition, _ *ExecutionState) (*series.Column, error) {
	partial.Retain()
	return partial, nil
}

// SupportsPartitioned reports whether e and all of its children can be
// evaluated per partition.
func SupportsPartitioned(e PhysicalExpr) bool {
	if t, ok := e.(*TernaryExpr); ok {
		return SupportsPartitioned(t.predicate) && SupportsPartitioned(t.truthy) && SupportsPartitioned(t.falsy)
	}
	return e.AsPartitionedAggregator() != nil
}
