// Package engine evaluates expressions against a table: row-wise
// projections, grouped aggregation and partitioned grouped aggregation.
package engine

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/config"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/expr"
	"github.com/paveg/whenthen/internal/logutil"
	"github.com/paveg/whenthen/internal/monitoring"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/series"
	"go.uber.org/zap"
)

// Engine plans and runs expressions. It is safe for concurrent use.
type Engine struct {
	mem        memory.Allocator
	pool       *parallel.Pool
	planner    *expr.Planner
	metrics    *monitoring.MetricsCollector
	partitions int
}

// Option configures an Engine
type Option func(*Engine)

// WithAllocator sets the allocator for every result column
func WithAllocator(mem memory.Allocator) Option {
	return func(e *Engine) { e.mem = mem }
}

// WithPool sets the worker pool. A nil pool evaluates everything inline.
func WithPool(pool *parallel.Pool) Option {
	return func(e *Engine) { e.pool = pool }
}

// WithMetrics sets the collector operations are recorded with
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = mc }
}

// WithPartitions sets the default partition count of AggPartitioned
func WithPartitions(n int) Option {
	return func(e *Engine) { e.partitions = n }
}

// New creates an engine. Unset options follow the global configuration.
func New(opts ...Option) *Engine {
	cfg := config.GetGlobalConfig()
	e := &Engine{
		mem:        memory.NewGoAllocator(),
		pool:       parallel.Default(),
		metrics:    monitoring.NewMetricsCollector(cfg.MetricsCollection),
		partitions: cfg.Partitions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mem == nil {
		e.mem = memory.NewGoAllocator()
	}
	e.planner = expr.NewPlanner(e.mem, e.pool)
	return e
}

// Metrics returns the collector of the engine
func (e *Engine) Metrics() *monitoring.MetricsCollector {
	return e.metrics
}

// Plan builds the physical tree of an expression
func (e *Engine) Plan(x expr.Expr) (expr.PhysicalExpr, error) {
	return e.planner.Plan(x)
}

// WithColumns evaluates every expression row-wise against df and returns a
// new table with the results added, or replacing columns of the same name.
// All expressions see the input table. A result of length 1 is broadcast to
// the height of df.
func (e *Engine) WithColumns(df *dataframe.DataFrame, exprs ...expr.Expr) (*dataframe.DataFrame, error) {
	var out *dataframe.DataFrame
	err := e.metrics.Record(monitoring.OperationMetrics{Operation: "with_columns", Rows: df.Height()}, func() error {
		cols, err := e.project(df, exprs)
		if err != nil {
			return err
		}
		out, err = withColumns(df, cols)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// project evaluates exprs concurrently, one column per expression
func (e *Engine) project(df *dataframe.DataFrame, exprs []expr.Expr) ([]*series.Column, error) {
	cols, err := parallel.ProcessIndexed(context.Background(), e.pool.Size(), exprs,
		func(_ context.Context, _ int, x expr.Expr) (*series.Column, error) {
			node, err := e.planner.Plan(x)
			if err != nil {
				return nil, err
			}
			col, err := node.Evaluate(df, expr.NewExecutionState())
			if err != nil {
				return nil, fmt.Errorf("evaluating %s: %w", x, err)
			}
			return e.fitHeight(col, df.Height())
		})
	if err != nil {
		logutil.Debug("projection failed", zap.Int("expressions", len(exprs)), zap.Error(err))
		return nil, err
	}
	return cols, nil
}

// fitHeight broadcasts a single value to height rows. Any other length
// that differs from height is an error.
func (e *Engine) fitHeight(col *series.Column, height int) (*series.Column, error) {
	switch {
	case col.Len() == height:
		return col, nil
	case col.Len() == 1:
		defer col.Release()
		return series.ExpandAtIndex(e.mem, col, 0, height)
	default:
		col.Release()
		return nil, errors.NewComputeError("with_columns",
			fmt.Sprintf("expression %s produced %d rows, expected %d", col.Name(), col.Len(), height))
	}
}

// withColumns adds cols to a copy of df, taking ownership of cols
func withColumns(df *dataframe.DataFrame, cols []*series.Column) (*dataframe.DataFrame, error) {
	out, err := df.Select(df.Columns()...)
	if err != nil {
		releaseAll(cols)
		return nil, err
	}
	for i, col := range cols {
		next, err := out.WithColumn(col)
		if err != nil {
			out.Release()
			releaseAll(cols[i:])
			return nil, err
		}
		out.Release()
		out = next
	}
	return out, nil
}

func releaseAll(cols []*series.Column) {
	for _, col := range cols {
		if col != nil {
			col.Release()
		}
	}
}
