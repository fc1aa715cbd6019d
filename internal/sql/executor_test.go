package sql_test

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/engine"
	"github.com/paveg/whenthen/internal/series"
	"github.com/paveg/whenthen/internal/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func newExecutor(t *testing.T, partitions int) *sql.Executor {
	t.Helper()
	mem := memory.NewGoAllocator()
	e := engine.New(engine.WithPool(nil), engine.WithAllocator(mem))
	ex := sql.NewExecutor(e, partitions)

	books, err := dataframe.New(
		series.NewCategorical("book", []*string{strp("bookA"), nil, strp("bookB"), nil, strp("bookA"), strp("bookC"), strp("bookC"), strp("bookC")}, mem),
		series.NewCategorical("user", []*string{strp("bob"), strp("bob"), strp("bob"), strp("tim"), strp("lucy"), strp("lucy"), nil, nil}, mem),
	)
	require.NoError(t, err)
	dists, err := dataframe.New(
		series.New("groups", []int64{1, 1, 2, 2}, mem),
		series.New("dist_a", []float64{0.1, 0.2, 0.5, 0.5}, mem),
		series.New("dist_b", []float64{0.8, 0.2, 0.5, 0.2}, mem),
	)
	require.NoError(t, err)
	vals, err := dataframe.New(
		series.New("key", []string{"a", "b", "b"}, mem),
		series.NewWithValidity("val", []int64{1, 2, 0}, []bool{true, true, false}, mem),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		books.Release()
		dists.Release()
		vals.Release()
	})

	ex.RegisterTable("books", books)
	ex.RegisterTable("dists", dists)
	ex.RegisterTable("vals", vals)
	return ex
}

func query(t *testing.T, ex *sql.Executor, q string) *dataframe.DataFrame {
	t.Helper()
	df, err := ex.Execute(context.Background(), q)
	require.NoError(t, err, q)
	t.Cleanup(df.Release)
	return df
}

func values(t *testing.T, df *dataframe.DataFrame, name string) []interface{} {
	t.Helper()
	col, ok := df.Column(name)
	require.True(t, ok, "missing column %s", name)
	return col.Values()
}

func TestExecutorProjection(t *testing.T) {
	ex := newExecutor(t, 0)
	assert.Equal(t, []string{"books", "dists", "vals"}, ex.Tables())

	t.Run("categorical case", func(t *testing.T) {
		df := query(t, ex, "SELECT book, user, CASE WHEN book IS NULL THEN user ELSE book END AS a FROM books")
		assert.Equal(t, []string{"book", "user", "a"}, df.Columns())
		assert.Equal(t, []interface{}{"bookA", "bob", "bookB", "tim", "bookA", "bookC", "bookC", "bookC"}, values(t, df, "a"))
	})

	t.Run("equality with null", func(t *testing.T) {
		df := query(t, ex, "SELECT CASE WHEN book = NULL THEN user ELSE book END AS a FROM books")
		assert.Equal(t, []string{"a"}, df.Columns())
		assert.Equal(t, []interface{}{"bookA", "bob", "bookB", "tim", "bookA", "bookC", "bookC", "bookC"}, values(t, df, "a"))
	})

	t.Run("wildcard with computed columns", func(t *testing.T) {
		df := query(t, ex, "SELECT *, 1 AS one, val * 10 AS big FROM vals")
		assert.Equal(t, []string{"key", "val", "one", "big"}, df.Columns())
		assert.Equal(t, []interface{}{int64(1), int64(1), int64(1)}, values(t, df, "one"))
		assert.Equal(t, []interface{}{int64(10), int64(20), nil}, values(t, df, "big"))
	})

	t.Run("default output name", func(t *testing.T) {
		df := query(t, ex, "SELECT key, val + 1 FROM vals")
		assert.Equal(t, []string{"key", "val"}, df.Columns())
		assert.Equal(t, []interface{}{int64(2), int64(3), nil}, values(t, df, "val"))
	})
}

func TestExecutorGroupBy(t *testing.T) {
	for _, partitions := range []int{0, 3} {
		ex := newExecutor(t, partitions)

		t.Run("group level predicate", func(t *testing.T) {
			df := query(t, ex, `SELECT groups,
				CASE WHEN SUM(dist_a) = 1.0 THEN SUM(dist_a) END AS dist_a,
				CASE WHEN SUM(dist_b) = 1.0 THEN SUM(dist_b) END AS dist_b
				FROM dists GROUP BY groups`)
			assert.Equal(t, []string{"groups", "dist_a", "dist_b"}, df.Columns())
			assert.Equal(t, []interface{}{int64(1), int64(2)}, values(t, df, "groups"))
			assert.Equal(t, []interface{}{nil, 1.0}, values(t, df, "dist_a"))
			assert.Equal(t, []interface{}{1.0, nil}, values(t, df, "dist_b"))
		})

		t.Run("null propagating sum", func(t *testing.T) {
			df := query(t, ex, "SELECT key, CASE WHEN NULL_COUNT(val) > 0 THEN NULL ELSE SUM(val) END AS sum_null_prop FROM vals GROUP BY key")
			assert.Equal(t, []interface{}{"a", "b"}, values(t, df, "key"))
			assert.Equal(t, []interface{}{int64(1), nil}, values(t, df, "sum_null_prop"))
		})

		t.Run("aliased key and select order", func(t *testing.T) {
			df := query(t, ex, "SELECT COUNT(val) AS n, key AS k FROM vals GROUP BY key")
			assert.Equal(t, []string{"n", "k"}, df.Columns())
			assert.Equal(t, []interface{}{"a", "b"}, values(t, df, "k"))
			assert.Equal(t, []interface{}{int64(1), int64(2)}, values(t, df, "n"))
		})
	}

	t.Run("partitioned only when every aggregate supports it", func(t *testing.T) {
		ex := newExecutor(t, 4)

		plan, err := ex.Explain("SELECT key, SUM(val) AS s FROM vals GROUP BY key")
		require.NoError(t, err)
		assert.Contains(t, plan, "agg_partitioned(4, ")

		plan, err = ex.Explain("SELECT key, CASE WHEN val > 1 THEN SUM(val) END AS s FROM vals GROUP BY key")
		require.NoError(t, err)
		assert.Contains(t, plan, "group_by(key).agg(")
		assert.Contains(t, plan, "select(key, s)")
	})
}

func TestExecutorErrors(t *testing.T) {
	ex := newExecutor(t, 0)

	for _, q := range []string{
		"SELECT a FROM missing",
		"SELECT nope FROM vals",
		"SELECT val, val FROM vals",
		"SELECT * FROM vals GROUP BY key",
		"SELECT key FROM vals GROUP BY nope",
		"SELECT CASE WHEN val THEN 1 ELSE 0 END AS x FROM vals",
		"SELECT val FROM vals WHERE val > 1",
	} {
		_, err := ex.Execute(context.Background(), q)
		assert.Error(t, err, q)
	}
}
