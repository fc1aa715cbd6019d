package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/expr"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/logutil"
	"github.com/paveg/whenthen/internal/monitoring"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/series"
	"github.com/paveg/whenthen/internal/validation"
	"go.uber.org/zap"
)

// GroupBy groups the rows of a table by the values of its key columns
type GroupBy struct {
	engine *Engine
	df     *dataframe.DataFrame
	keys   []string
}

// GroupBy starts a grouped aggregation over df
func (e *Engine) GroupBy(df *dataframe.DataFrame, keys ...string) *GroupBy {
	return &GroupBy{engine: e, df: df, keys: keys}
}

// Agg evaluates every expression per group. The result holds the key columns
// followed by one column per expression, one row per group in the order the
// groups first appear.
func (gb *GroupBy) Agg(exprs ...expr.Expr) (*dataframe.DataFrame, error) {
	keys, err := gb.keyColumns(gb.df)
	if err != nil {
		return nil, err
	}
	p, err := groups.ByKeys(keys...)
	if err != nil {
		return nil, err
	}

	var out *dataframe.DataFrame
	m := monitoring.OperationMetrics{Operation: "group_by_agg", Rows: gb.df.Height(), Groups: p.Len()}
	err = gb.engine.metrics.Record(m, func() error {
		keyCols, err := firstRows(gb.engine, keys, p)
		if err != nil {
			return err
		}
		values, err := gb.aggregate(p, exprs)
		if err != nil {
			releaseAll(keyCols)
			return err
		}
		out, err = newFrame(append(keyCols, values...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// aggregate evaluates exprs on the groups of p concurrently
func (gb *GroupBy) aggregate(p *groups.Partition, exprs []expr.Expr) ([]*series.Column, error) {
	e := gb.engine
	return parallel.ProcessIndexed(context.Background(), e.pool.Size(), exprs,
		func(_ context.Context, _ int, x expr.Expr) (*series.Column, error) {
			node, err := e.planner.Plan(x)
			if err != nil {
				return nil, err
			}
			ac, err := node.EvaluateOnGroups(gb.df, p, expr.NewExecutionState())
			if err != nil {
				return nil, fmt.Errorf("evaluating %s: %w", x, err)
			}
			defer ac.Release()

			logutil.Debug("aggregated expression",
				zap.String("expr", x.String()),
				zap.String("state", ac.Kind().String()),
				zap.Bool("update_groups", ac.UpdateGroups()))
			return ac.Finalize()
		})
}

// partial is the result of one partition: key values, partial aggregates
// and the input row where each of its groups first appears
type partial struct {
	keys      []*series.Column
	values    []*series.Column
	firstRows []int
}

func (pt *partial) release() {
	releaseAll(pt.keys)
	releaseAll(pt.values)
}

// AggPartitioned computes the same result as Agg by hash partitioning the
// rows on their keys, evaluating every partition concurrently and combining
// the partial results. Every expression must support partitioned evaluation;
// n <= 0 uses the engine's partition count.
func (gb *GroupBy) AggPartitioned(ctx context.Context, n int, exprs ...expr.Expr) (*dataframe.DataFrame, error) {
	e := gb.engine
	if n <= 0 {
		n = e.partitions
	}

	aggs := make([]expr.PartitionedAggregation, len(exprs))
	for i, x := range exprs {
		node, err := e.planner.Plan(x)
		if err != nil {
			return nil, err
		}
		if !expr.SupportsPartitioned(node) {
			return nil, errors.NewInvalidInputError("agg_partitioned",
				fmt.Sprintf("%s cannot be evaluated per partition", x))
		}
		aggs[i] = node.AsPartitionedAggregator()
	}

	keys, err := gb.keyColumns(gb.df)
	if err != nil {
		return nil, err
	}
	parts, err := groups.HashPartition(n, keys...)
	if err != nil {
		return nil, err
	}
	nonEmpty := parts[:0]
	for _, rows := range parts {
		if len(rows) > 0 {
			nonEmpty = append(nonEmpty, rows)
		}
	}
	if len(nonEmpty) == 0 {
		return gb.Agg(exprs...)
	}

	var out *dataframe.DataFrame
	m := monitoring.OperationMetrics{Operation: "group_by_agg_partitioned", Rows: gb.df.Height(), Partitions: len(nonEmpty)}
	err = e.metrics.Record(m, func() error {
		partials, err := parallel.ProcessIndexed(ctx, e.pool.Size(), nonEmpty,
			func(ctx context.Context, _ int, rows []int) (*partial, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return gb.evaluatePartition(rows, exprs, aggs)
			})
		if err != nil {
			return err
		}
		defer func() {
			for _, pt := range partials {
				pt.release()
			}
		}()

		logutil.Debug("combining partitions", zap.Int("partitions", len(partials)), zap.Int("expressions", len(exprs)))
		out, err = gb.combine(partials, aggs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// evaluatePartition runs every expression on the given rows of the input
func (gb *GroupBy) evaluatePartition(rows []int, exprs []expr.Expr, aggs []expr.PartitionedAggregation) (*partial, error) {
	e := gb.engine
	sub, err := gb.df.Take(e.mem, rows)
	if err != nil {
		return nil, err
	}
	defer sub.Release()

	keys, err := gb.keyColumns(sub)
	if err != nil {
		return nil, err
	}
	p, err := groups.ByKeys(keys...)
	if err != nil {
		return nil, err
	}

	pt := &partial{firstRows: make([]int, p.Len())}
	for g := range pt.firstRows {
		pt.firstRows[g] = rows[p.First(g)]
	}
	if pt.keys, err = firstRows(e, keys, p); err != nil {
		return nil, err
	}

	state := expr.NewExecutionState()
	for i, agg := range aggs {
		col, err := agg.EvaluatePartitioned(sub, p, state)
		if err != nil {
			pt.release()
			return nil, fmt.Errorf("evaluating %s: %w", exprs[i], err)
		}
		if col, err = fitGroups(e, col, p.Len()); err != nil {
			pt.release()
			return nil, err
		}
		pt.values = append(pt.values, col)
	}
	return pt, nil
}

// combine concatenates the partial results, finalizes them per group and
// restores the first appearance order of the groups
func (gb *GroupBy) combine(partials []*partial, aggs []expr.PartitionedAggregation) (*dataframe.DataFrame, error) {
	e := gb.engine
	concat := func(pick func(*partial) *series.Column) (*series.Column, error) {
		cols := make([]*series.Column, len(partials))
		for i, pt := range partials {
			cols[i] = pick(pt)
		}
		return series.Concat(cols[0].Name(), cols...)
	}

	var starts []int
	for _, pt := range partials {
		starts = append(starts, pt.firstRows...)
	}
	order := make([]int, len(starts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return starts[order[a]] < starts[order[b]] })

	var result []*series.Column
	fail := func(err error) (*dataframe.DataFrame, error) {
		releaseAll(result)
		return nil, err
	}

	mergedKeys := make([]*series.Column, len(gb.keys))
	defer func() { releaseAll(mergedKeys) }()
	for k := range gb.keys {
		col, err := concat(func(pt *partial) *series.Column { return pt.keys[k] })
		if err != nil {
			return fail(err)
		}
		mergedKeys[k] = col
	}
	p, err := groups.ByKeys(mergedKeys...)
	if err != nil {
		return fail(err)
	}
	if p.Len() != len(starts) {
		errors.Invariant("agg_partitioned", "%d groups over %d partial rows, a group spans partitions", p.Len(), len(starts))
	}

	for _, key := range mergedKeys {
		col, err := series.Take(e.mem, key, order)
		if err != nil {
			return fail(err)
		}
		result = append(result, col)
	}

	state := expr.NewExecutionState()
	for i, agg := range aggs {
		merged, err := concat(func(pt *partial) *series.Column { return pt.values[i] })
		if err != nil {
			return fail(err)
		}
		final, err := agg.Finalize(merged, p, state)
		merged.Release()
		if err != nil {
			return fail(err)
		}
		ordered, err := series.Take(e.mem, final, order)
		final.Release()
		if err != nil {
			return fail(err)
		}
		result = append(result, ordered)
	}
	return newFrame(result)
}

// keyColumns looks up the key columns in df
func (gb *GroupBy) keyColumns(df *dataframe.DataFrame) ([]*series.Column, error) {
	if err := validation.ValidateKeys(df, "group_by", gb.keys...); err != nil {
		return nil, err
	}
	keys := make([]*series.Column, len(gb.keys))
	for i, name := range gb.keys {
		keys[i], _ = df.Column(name)
	}
	return keys, nil
}

// firstRows takes the key values of the first row of every group
func firstRows(e *Engine, keys []*series.Column, p *groups.Partition) ([]*series.Column, error) {
	indices := make([]int, p.Len())
	for g := range indices {
		indices[g] = p.First(g)
	}
	out := make([]*series.Column, 0, len(keys))
	for _, key := range keys {
		col, err := series.Take(e.mem, key, indices)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

// fitGroups broadcasts a single partial value to every group
func fitGroups(e *Engine, col *series.Column, n int) (*series.Column, error) {
	switch {
	case col.Len() == n:
		return col, nil
	case col.Len() == 1:
		defer col.Release()
		return series.ExpandAtIndex(e.mem, col, 0, n)
	default:
		col.Release()
		return nil, errors.NewComputeError("agg_partitioned",
			fmt.Sprintf("%s produced %d values for %d groups", col.Name(), col.Len(), n))
	}
}

func newFrame(cols []*series.Column) (*dataframe.DataFrame, error) {
	df, err := dataframe.New(cols...)
	if err != nil {
		releaseAll(cols)
		return nil, err
	}
	return df, nil
}
