package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/expr"
)

// LazyOperation represents a deferred operation on a DataFrame
type LazyOperation interface {
	Apply(ctx context.Context, e *Engine, df *dataframe.DataFrame) (*dataframe.DataFrame, error)
	String() string
}

// WithColumnsOperation adds the results of row-wise expressions
type WithColumnsOperation struct {
	exprs []expr.Expr
}

func (w *WithColumnsOperation) Apply(_ context.Context, e *Engine, df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	return e.WithColumns(df, w.exprs...)
}

func (w *WithColumnsOperation) String() string {
	return fmt.Sprintf("with_columns(%s)", joinExprs(w.exprs))
}

// GroupByOperation aggregates expressions per group. A positive partition
// count selects partitioned evaluation.
type GroupByOperation struct {
	keys       []string
	exprs      []expr.Expr
	partitions int
}

func (g *GroupByOperation) Apply(ctx context.Context, e *Engine, df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	gb := e.GroupBy(df, g.keys...)
	if g.partitions > 0 {
		return gb.AggPartitioned(ctx, g.partitions, g.exprs...)
	}
	return gb.Agg(g.exprs...)
}

func (g *GroupByOperation) String() string {
	if g.partitions > 0 {
		return fmt.Sprintf("group_by(%s).agg_partitioned(%d, %s)", strings.Join(g.keys, ", "), g.partitions, joinExprs(g.exprs))
	}
	return fmt.Sprintf("group_by(%s).agg(%s)", strings.Join(g.keys, ", "), joinExprs(g.exprs))
}

// SelectOperation keeps the named columns in the given order
type SelectOperation struct {
	columns []string
}

func (s *SelectOperation) Apply(_ context.Context, _ *Engine, df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	return df.Select(s.columns...)
}

func (s *SelectOperation) String() string {
	return fmt.Sprintf("select(%s)", strings.Join(s.columns, ", "))
}

func joinExprs(exprs []expr.Expr) string {
	parts := make([]string, len(exprs))
	for i, x := range exprs {
		parts[i] = x.String()
	}
	return strings.Join(parts, ", ")
}

// LazyFrame holds a DataFrame and a sequence of deferred operations
type LazyFrame struct {
	engine     *Engine
	source     *dataframe.DataFrame
	operations []LazyOperation
}

// Lazy starts a deferred query over df
func (e *Engine) Lazy(df *dataframe.DataFrame) *LazyFrame {
	return &LazyFrame{engine: e, source: df}
}

func (lf *LazyFrame) with(op LazyOperation) *LazyFrame {
	ops := make([]LazyOperation, len(lf.operations), len(lf.operations)+1)
	copy(ops, lf.operations)
	return &LazyFrame{engine: lf.engine, source: lf.source, operations: append(ops, op)}
}

// WithColumns adds a projection of row-wise expressions
func (lf *LazyFrame) WithColumns(exprs ...expr.Expr) *LazyFrame {
	return lf.with(&WithColumnsOperation{exprs: exprs})
}

// Select keeps only the named columns, in order
func (lf *LazyFrame) Select(columns ...string) *LazyFrame {
	return lf.with(&SelectOperation{columns: columns})
}

// GroupBy adds a grouping that must be followed by an aggregation
func (lf *LazyFrame) GroupBy(keys ...string) *LazyGroupBy {
	return &LazyGroupBy{lazyFrame: lf, keys: keys}
}

// LazyGroupBy is a pending grouping of a LazyFrame
type LazyGroupBy struct {
	lazyFrame *LazyFrame
	keys      []string
}

// Agg aggregates expressions per group
func (lgb *LazyGroupBy) Agg(exprs ...expr.Expr) *LazyFrame {
	return lgb.lazyFrame.with(&GroupByOperation{keys: lgb.keys, exprs: exprs})
}

// AggPartitioned aggregates expressions per group over n hash partitions;
// n <= 0 uses the engine's partition count
func (lgb *LazyGroupBy) AggPartitioned(n int, exprs ...expr.Expr) *LazyFrame {
	if n <= 0 {
		n = lgb.lazyFrame.engine.partitions
	}
	if n <= 0 {
		n = 1
	}
	return lgb.lazyFrame.with(&GroupByOperation{keys: lgb.keys, exprs: exprs, partitions: n})
}

// Collect executes all deferred operations in order. The caller owns the
// returned DataFrame; the source is left untouched.
func (lf *LazyFrame) Collect(ctx context.Context) (*dataframe.DataFrame, error) {
	current, err := lf.source.Select(lf.source.Columns()...)
	if err != nil {
		return nil, err
	}

	for _, op := range lf.operations {
		if err := ctx.Err(); err != nil {
			current.Release()
			return nil, err
		}
		next, err := op.Apply(ctx, lf.engine, current)
		current.Release()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		current = next
	}
	return current, nil
}

// String returns the deferred operations in order
func (lf *LazyFrame) String() string {
	var sb strings.Builder
	sb.WriteString("LazyFrame")
	for _, op := range lf.operations {
		sb.WriteString("\n  -> ")
		sb.WriteString(op.String())
	}
	return sb.String()
}
