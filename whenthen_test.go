package whenthen_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func newFrame(t *testing.T, cols ...*whenthen.Series) *whenthen.DataFrame {
	t.Helper()
	df, err := whenthen.NewDataFrame(cols...)
	require.NoError(t, err)
	for _, col := range cols {
		col.Release()
	}
	t.Cleanup(df.Release)
	return df
}

func values(t *testing.T, df *whenthen.DataFrame, name string) []interface{} {
	t.Helper()
	col, ok := df.Column(name)
	require.True(t, ok, "missing column %s", name)
	return col.Values()
}

func TestChainedConditions(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewSeries("p", []bool{true, false, false}, mem),
		whenthen.NewSeries("q", []bool{false, true, false}, mem),
		whenthen.NewSeriesWithValidity("a", []string{"a1", "", ""}, []bool{true, false, false}, mem),
		whenthen.NewSeriesWithValidity("b", []string{"", "b2", ""}, []bool{false, true, false}, mem),
	)

	out, err := df.WithColumns(
		whenthen.When(whenthen.Col("p")).Then(whenthen.Col("a")).
			When(whenthen.Col("q")).Then(whenthen.Col("b")).
			Otherwise(whenthen.Lit("otherwise")).Alias("out"),
	)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, []string{"p", "q", "a", "b", "out"}, out.Columns())
	assert.Equal(t, []interface{}{"a1", "b2", "otherwise"}, values(t, out, "out"))
}

func TestGroupPredicates(t *testing.T) {
	mem := memory.NewGoAllocator()
	dists := newFrame(t,
		whenthen.NewSeries("groups", []int64{1, 1, 2, 2}, mem),
		whenthen.NewSeries("dist_a", []float64{0.1, 0.2, 0.5, 0.5}, mem),
		whenthen.NewSeries("dist_b", []float64{0.8, 0.2, 0.5, 0.2}, mem),
	)
	vals := newFrame(t,
		whenthen.NewSeries("key", []string{"a", "b", "b"}, mem),
		whenthen.NewSeriesWithValidity("val", []int64{1, 2, 0}, []bool{true, true, false}, mem),
	)

	exactlyOne := func(name string) whenthen.Expression {
		sum := whenthen.Sum(whenthen.Col(name))
		return whenthen.When(sum.Eq(whenthen.Lit(1.0))).Then(sum).Otherwise(whenthen.Lit(nil)).Alias(name)
	}
	val := whenthen.Col("val")
	nullProp := whenthen.When(whenthen.NullCount(val).Gt(whenthen.Lit(int64(0)))).
		Then(whenthen.Lit(nil)).
		Otherwise(whenthen.Sum(val)).
		Alias("sum_null_prop")

	aggregate := map[string]func(*whenthen.GroupBy, ...whenthen.Expression) (*whenthen.DataFrame, error){
		"agg": (*whenthen.GroupBy).Agg,
		"partitioned": func(gb *whenthen.GroupBy, exprs ...whenthen.Expression) (*whenthen.DataFrame, error) {
			return gb.AggPartitioned(context.Background(), 3, exprs...)
		},
	}
	for name, agg := range aggregate {
		t.Run(name, func(t *testing.T) {
			out, err := agg(dists.GroupBy("groups"), exactlyOne("dist_a"), exactlyOne("dist_b"))
			require.NoError(t, err)
			defer out.Release()
			assert.Equal(t, []interface{}{int64(1), int64(2)}, values(t, out, "groups"))
			assert.Equal(t, []interface{}{nil, 1.0}, values(t, out, "dist_a"))
			assert.Equal(t, []interface{}{1.0, nil}, values(t, out, "dist_b"))

			out, err = agg(vals.GroupBy("key"), nullProp)
			require.NoError(t, err)
			defer out.Release()
			assert.Equal(t, []interface{}{"a", "b"}, values(t, out, "key"))
			assert.Equal(t, []interface{}{int64(1), nil}, values(t, out, "sum_null_prop"))
		})
	}
}

func TestCategoricalBranches(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewCategoricalSeries("book", []*string{strp("bookA"), nil, strp("bookB"), nil, strp("bookA"), strp("bookC"), strp("bookC"), strp("bookC")}, mem),
		whenthen.NewCategoricalSeries("user", []*string{strp("bob"), strp("bob"), strp("bob"), strp("tim"), strp("lucy"), strp("lucy"), nil, nil}, mem),
	)

	book := whenthen.Col("book")
	for _, predicate := range []whenthen.Expression{book.IsNull(), book.Eq(whenthen.Lit(nil))} {
		out, err := df.WithColumns(whenthen.When(predicate).Then(whenthen.Col("user")).Otherwise(book).Alias("a"))
		require.NoError(t, err)
		assert.Equal(t,
			[]interface{}{"bookA", "bob", "bookB", "tim", "bookA", "bookC", "bookC", "bookC"},
			values(t, out, "a"), predicate.String())
		out.Release()
	}
}

func TestSingleGroupMatchesRowWise(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewSeries("g", []string{"x", "x", "x", "x"}, mem),
		whenthen.NewSeriesWithValidity("p", []bool{true, false, true, false}, []bool{true, true, false, true}, mem),
		whenthen.NewSeries("t", []int64{1, 2, 3, 4}, mem),
		whenthen.NewSeries("f", []int64{10, 20, 30, 40}, mem),
	)
	ternary := whenthen.When(whenthen.Col("p")).Then(whenthen.Col("t")).Otherwise(whenthen.Col("f")).Alias("out")

	rows, err := df.WithColumns(ternary)
	require.NoError(t, err)
	defer rows.Release()
	assert.Equal(t, []interface{}{int64(1), int64(20), int64(30), int64(40)}, values(t, rows, "out"))

	grouped, err := df.GroupBy("g").Agg(ternary)
	require.NoError(t, err)
	defer grouped.Release()
	assert.Equal(t, []interface{}{values(t, rows, "out")}, values(t, grouped, "out"))
}

func TestLazyFrame(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewSeries("k", []string{"a", "b", "a"}, mem),
		whenthen.NewSeries("v", []int64{1, 2, 3}, mem),
	)

	lf := df.Lazy().
		WithColumns(whenthen.When(whenthen.Col("v").Gt(whenthen.Lit(int64(1)))).
			Then(whenthen.Col("v")).
			Otherwise(whenthen.Lit(int64(0))).Alias("big")).
		GroupBy("k").AggPartitioned(2, whenthen.Sum(whenthen.Col("big")).Alias("total")).
		Select("total", "k")
	assert.Contains(t, lf.String(), "agg_partitioned(2, ")

	out, err := lf.Collect(context.Background())
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []string{"total", "k"}, out.Columns())
	assert.Equal(t, []interface{}{int64(3), int64(2)}, values(t, out, "total"))
}

func TestSQLExecutor(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewSeries("key", []string{"a", "b", "b"}, mem),
		whenthen.NewSeriesWithValidity("val", []int64{1, 2, 0}, []bool{true, true, false}, mem),
	)

	ex := whenthen.NewSQLExecutor(2)
	ex.RegisterTable("vals", df)
	assert.Equal(t, []string{"vals"}, ex.Tables())

	out, err := ex.Execute(context.Background(),
		"SELECT key, CASE WHEN NULL_COUNT(val) > 0 THEN NULL ELSE SUM(val) END AS s FROM vals GROUP BY key")
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []interface{}{int64(1), nil}, values(t, out, "s"))

	plan, err := ex.Explain("SELECT key FROM vals")
	require.NoError(t, err)
	assert.Contains(t, plan, "select(key)")

	_, err = ex.Execute(context.Background(), "SELECT key FROM vals WHERE val > 1")
	assert.Error(t, err)
}

func TestReadWriteFile(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newFrame(t,
		whenthen.NewSeries("k", []string{"a", "b"}, mem),
		whenthen.NewSeriesWithValidity("v", []float64{0.5, 0}, []bool{true, false}, mem),
	)

	for _, name := range []string{"out.csv", "out.parquet"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, df.WriteFile(path))

		back, err := whenthen.ReadFile(path, mem)
		require.NoError(t, err, name)
		assert.Equal(t, []interface{}{"a", "b"}, values(t, back, "k"))
		assert.Equal(t, []interface{}{0.5, nil}, values(t, back, "v"))
		back.Release()
	}
}

func TestConfigure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whenthen.toml")
	require.NoError(t, os.WriteFile(path, []byte("worker_pool_size = 2\npartition_count = 4\n\n[log]\nlevel = \"warn\"\n"), 0o600))

	cfg, err := whenthen.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerPoolSize)
	assert.Equal(t, 4, cfg.Partitions())
	require.NoError(t, whenthen.Configure(cfg))

	mem := memory.NewGoAllocator()
	df := newFrame(t, whenthen.NewSeries("v", []int64{1, 2, 3}, mem))
	out, err := df.WithColumns(whenthen.Sum(whenthen.Col("v")).Alias("total"))
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []interface{}{int64(6), int64(6), int64(6)}, values(t, out, "total"))

	cfg.WorkerPoolSize = -1
	assert.Error(t, whenthen.Configure(cfg))
}

func TestNewDataFrameErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	a := whenthen.NewSeries("a", []int64{1, 2}, mem)
	b := whenthen.NewSeries("b", []int64{1}, mem)
	defer a.Release()
	defer b.Release()

	_, err := whenthen.NewDataFrame(a, b)
	assert.Error(t, err)
	_, err = whenthen.NewDataFrame(a, a)
	assert.Error(t, err)
	assert.Equal(t, 2, a.Len())
}
