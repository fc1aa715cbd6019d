package dataframe

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrame(t *testing.T, mem memory.Allocator) *DataFrame {
	t.Helper()
	df, err := New(
		series.New("name", []string{"Alice", "Bob", "Charlie"}, mem),
		series.New("age", []int64{25, 30, 35}, mem),
	)
	require.NoError(t, err)
	return df
}

func TestNew(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("columns keep their order", func(t *testing.T) {
		df := newTestFrame(t, mem)
		defer df.Release()

		assert.Equal(t, []string{"name", "age"}, df.Columns())
		assert.Equal(t, 3, df.Height())
		assert.Equal(t, 3, df.Len())
		assert.Equal(t, 2, df.Width())
		assert.True(t, df.HasColumn("age"))
		assert.False(t, df.HasColumn("missing"))
	})

	t.Run("empty frame", func(t *testing.T) {
		df, err := New()
		require.NoError(t, err)
		assert.Equal(t, 0, df.Height())
		assert.Equal(t, "DataFrame[empty]", df.String())
	})

	t.Run("height mismatch", func(t *testing.T) {
		a := series.New("a", []int64{1, 2}, mem)
		b := series.New("b", []int64{1}, mem)
		defer a.Release()
		defer b.Release()

		_, err := New(a, b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "column b has 1 rows, expected 2")
	})

	t.Run("duplicate names", func(t *testing.T) {
		a := series.New("a", []int64{1}, mem)
		b := series.New("a", []int64{2}, mem)
		defer a.Release()
		defer b.Release()

		_, err := New(a, b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate column a")
	})
}

func TestSchema(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newTestFrame(t, mem)
	defer df.Release()

	schema := df.Schema()
	require.Equal(t, 2, len(schema.Fields()))
	assert.Equal(t, "name", schema.Field(0).Name)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, schema.Field(1).Type))
}

func TestWithColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newTestFrame(t, mem)
	defer df.Release()

	t.Run("append", func(t *testing.T) {
		out, err := df.WithColumn(series.New("score", []float64{1, 2, 3}, mem))
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, []string{"name", "age", "score"}, out.Columns())
		assert.Equal(t, []string{"name", "age"}, df.Columns())
	})

	t.Run("replace keeps position", func(t *testing.T) {
		out, err := df.WithColumn(series.New("name", []string{"x", "y", "z"}, mem))
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, []string{"name", "age"}, out.Columns())
		col, ok := out.Column("name")
		require.True(t, ok)
		assert.Equal(t, []interface{}{"x", "y", "z"}, col.Values())

		orig, _ := df.Column("name")
		assert.Equal(t, "Alice", orig.Value(0))
	})

	t.Run("height mismatch", func(t *testing.T) {
		col := series.New("short", []int64{1}, mem)
		defer col.Release()
		_, err := df.WithColumn(col)
		require.Error(t, err)
	})

	t.Run("empty frame adopts height", func(t *testing.T) {
		empty, err := New()
		require.NoError(t, err)
		out, err := empty.WithColumn(series.New("a", []int64{1, 2}, mem))
		require.NoError(t, err)
		defer out.Release()
		assert.Equal(t, 2, out.Height())
	})
}

func TestSelectAndTake(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := newTestFrame(t, mem)
	defer df.Release()

	selected, err := df.Select("age")
	require.NoError(t, err)
	defer selected.Release()
	assert.Equal(t, []string{"age"}, selected.Columns())

	_, err = df.Select("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NewColumnNotFoundError("Select", "missing")))

	taken, err := df.Take(mem, []int{2, 0})
	require.NoError(t, err)
	defer taken.Release()
	assert.Equal(t, 2, taken.Height())
	name, _ := taken.Column("name")
	assert.Equal(t, []interface{}{"Charlie", "Alice"}, name.Values())
}
