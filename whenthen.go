// Package whenthen evaluates conditional when/then/otherwise expressions over
// Arrow-backed tables, row by row or per group, with an optional partitioned
// grouped aggregation. This package is the sole public API of the module.
package whenthen

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/config"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/engine"
	"github.com/paveg/whenthen/internal/expr"
	"github.com/paveg/whenthen/internal/io"
	"github.com/paveg/whenthen/internal/logutil"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/series"
	"github.com/paveg/whenthen/internal/sql"
	"go.uber.org/zap"
)

// Series is a named, nullable, chunked column.
type Series struct {
	col *series.Column
}

// DataFrame is an ordered set of equally long, uniquely named Series.
type DataFrame struct {
	df *dataframe.DataFrame
}

// GroupBy is a DataFrame grouped on key columns.
type GroupBy struct {
	gb *engine.GroupBy
}

// LazyFrame records operations and runs them on Collect.
type LazyFrame struct {
	lf *engine.LazyFrame
}

// LazyGroupBy is a deferred grouping waiting for its aggregations.
type LazyGroupBy struct {
	lgb *engine.LazyGroupBy
}

// Expression describes a computation over the columns of a DataFrame.
type Expression struct {
	expr expr.Expr
}

// Config is the engine configuration. See LoadConfig and Configure.
type Config = config.Config

var (
	engineMu      sync.RWMutex
	defaultEngine *engine.Engine
)

func currentEngine() *engine.Engine {
	engineMu.RLock()
	e := defaultEngine
	engineMu.RUnlock()
	if e != nil {
		return e
	}

	engineMu.Lock()
	defer engineMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = engine.New()
	}
	return defaultEngine
}

// Configure validates cfg, installs it as the global configuration along
// with its logger, and rebuilds the engine used by every operation.
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()
	if _, err := logutil.SetupLogger(cfg.Log); err != nil {
		return err
	}
	pool, err := parallel.NewPool(cfg.Workers())
	if err != nil {
		return err
	}
	config.SetGlobalConfig(cfg)

	engineMu.Lock()
	defaultEngine = engine.New(engine.WithPool(pool))
	engineMu.Unlock()
	logutil.Info("engine configured",
		zap.Int("workers", cfg.Workers()),
		zap.Int("partitions", cfg.Partitions()),
		zap.Bool("metrics", cfg.MetricsCollection))
	return nil
}

// LoadConfig reads a JSON, YAML or TOML configuration file.
func LoadConfig(path string) (Config, error) {
	return config.LoadFromFile(path)
}

// Series

// NewSeries creates a Series without nulls.
func NewSeries[T any](name string, values []T, mem memory.Allocator) *Series {
	return &Series{col: series.New(name, values, mem)}
}

// NewSeriesWithValidity creates a Series where valid[i] == false marks a null.
func NewSeriesWithValidity[T any](name string, values []T, valid []bool, mem memory.Allocator) *Series {
	return &Series{col: series.NewWithValidity(name, values, valid, mem)}
}

// NewCategoricalSeries creates a dictionary encoded string Series; nil
// entries are null.
func NewCategoricalSeries(name string, values []*string, mem memory.Allocator) *Series {
	return &Series{col: series.NewCategorical(name, values, mem)}
}

// Name returns the series name.
func (s *Series) Name() string { return s.col.Name() }

// Len returns the number of values.
func (s *Series) Len() int { return s.col.Len() }

// DataType returns the Arrow type of the values.
func (s *Series) DataType() arrow.DataType { return s.col.DataType() }

// IsNull reports whether the value at index is null.
func (s *Series) IsNull(index int) bool { return s.col.IsNull(index) }

// NullN returns the number of nulls.
func (s *Series) NullN() int { return s.col.NullN() }

// Value returns the value at index as a Go value, nil for null.
func (s *Series) Value(index int) interface{} { return s.col.Value(index) }

// Values returns all values as Go values.
func (s *Series) Values() []interface{} { return s.col.Values() }

func (s *Series) String() string { return s.col.String() }

// Release releases the memory of the series.
func (s *Series) Release() { s.col.Release() }

// DataFrame

// NewDataFrame creates a DataFrame from series of equal length and distinct
// names. The DataFrame holds its own reference to every series.
func NewDataFrame(cols ...*Series) (*DataFrame, error) {
	inner := make([]*series.Column, len(cols))
	for i, s := range cols {
		s.col.Retain()
		inner[i] = s.col
	}
	df, err := dataframe.New(inner...)
	if err != nil {
		for _, col := range inner {
			col.Release()
		}
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// ReadFile reads a CSV or Parquet file, chosen by extension.
func ReadFile(path string, mem memory.Allocator) (*DataFrame, error) {
	df, err := io.ReadFile(path, mem)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// WriteFile writes the DataFrame as CSV or Parquet, chosen by extension.
func (d *DataFrame) WriteFile(path string) error {
	return io.WriteFile(path, d.df)
}

// Columns returns the column names in order.
func (d *DataFrame) Columns() []string { return d.df.Columns() }

// Len returns the number of rows.
func (d *DataFrame) Len() int { return d.df.Len() }

// Width returns the number of columns.
func (d *DataFrame) Width() int { return d.df.Width() }

// HasColumn reports whether a column exists.
func (d *DataFrame) HasColumn(name string) bool { return d.df.HasColumn(name) }

// Column returns a column by name. The Series stays valid while the
// DataFrame is not released.
func (d *DataFrame) Column(name string) (*Series, bool) {
	col, ok := d.df.Column(name)
	if !ok {
		return nil, false
	}
	return &Series{col: col}, true
}

// Select returns a DataFrame with the named columns in the given order.
func (d *DataFrame) Select(names ...string) (*DataFrame, error) {
	df, err := d.df.Select(names...)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

func (d *DataFrame) String() string { return d.df.String() }

// Release releases the memory of the DataFrame.
func (d *DataFrame) Release() { d.df.Release() }

// WithColumns evaluates every expression row-wise against the DataFrame and
// returns it with the results added, or replaced when a name exists.
// Results of length one are broadcast to the height of the DataFrame.
func (d *DataFrame) WithColumns(exprs ...Expression) (*DataFrame, error) {
	df, err := currentEngine().WithColumns(d.df, unwrap(exprs)...)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// GroupBy groups the rows on the key columns.
func (d *DataFrame) GroupBy(keys ...string) *GroupBy {
	return &GroupBy{gb: currentEngine().GroupBy(d.df, keys...)}
}

// Agg evaluates every expression per group. The result holds the key
// columns followed by one column per expression, one row per group in
// order of first appearance.
func (gb *GroupBy) Agg(exprs ...Expression) (*DataFrame, error) {
	df, err := gb.gb.Agg(unwrap(exprs)...)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// AggPartitioned computes the same result as Agg over n hash partitions of
// the rows. n <= 0 uses the configured partition count. Expressions that
// need the whole group at once are rejected.
func (gb *GroupBy) AggPartitioned(ctx context.Context, n int, exprs ...Expression) (*DataFrame, error) {
	df, err := gb.gb.AggPartitioned(ctx, n, unwrap(exprs)...)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// Lazy starts a deferred pipeline on the DataFrame.
func (d *DataFrame) Lazy() *LazyFrame {
	return &LazyFrame{lf: currentEngine().Lazy(d.df)}
}

// WithColumns adds a deferred row-wise projection.
func (lf *LazyFrame) WithColumns(exprs ...Expression) *LazyFrame {
	return &LazyFrame{lf: lf.lf.WithColumns(unwrap(exprs)...)}
}

// Select adds a deferred column selection.
func (lf *LazyFrame) Select(columns ...string) *LazyFrame {
	return &LazyFrame{lf: lf.lf.Select(columns...)}
}

// GroupBy starts a deferred grouping.
func (lf *LazyFrame) GroupBy(keys ...string) *LazyGroupBy {
	return &LazyGroupBy{lgb: lf.lf.GroupBy(keys...)}
}

// Agg completes the grouping with Agg semantics.
func (lgb *LazyGroupBy) Agg(exprs ...Expression) *LazyFrame {
	return &LazyFrame{lf: lgb.lgb.Agg(unwrap(exprs)...)}
}

// AggPartitioned completes the grouping with AggPartitioned semantics.
func (lgb *LazyGroupBy) AggPartitioned(n int, exprs ...Expression) *LazyFrame {
	return &LazyFrame{lf: lgb.lgb.AggPartitioned(n, unwrap(exprs)...)}
}

// Collect runs the recorded operations.
func (lf *LazyFrame) Collect(ctx context.Context) (*DataFrame, error) {
	df, err := lf.lf.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

func (lf *LazyFrame) String() string { return lf.lf.String() }

// SQLExecutor runs SELECT statements with CASE WHEN against registered
// DataFrames.
type SQLExecutor struct {
	ex *sql.Executor
}

// NewSQLExecutor creates an executor. GROUP BY queries run partitioned over
// the given number of partitions when every aggregate allows it; 0 always
// runs them unpartitioned.
func NewSQLExecutor(partitions int) *SQLExecutor {
	return &SQLExecutor{ex: sql.NewExecutor(currentEngine(), partitions)}
}

// RegisterTable makes df available to queries under name.
func (s *SQLExecutor) RegisterTable(name string, df *DataFrame) {
	s.ex.RegisterTable(name, df.df)
}

// Tables returns the registered table names, sorted.
func (s *SQLExecutor) Tables() []string { return s.ex.Tables() }

// Execute runs query. The caller owns the result.
func (s *SQLExecutor) Execute(ctx context.Context, query string) (*DataFrame, error) {
	df, err := s.ex.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// Explain returns the operations query translates to.
func (s *SQLExecutor) Explain(query string) (string, error) {
	return s.ex.Explain(query)
}

func unwrap(exprs []Expression) []expr.Expr {
	out := make([]expr.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = e.expr
	}
	return out
}
