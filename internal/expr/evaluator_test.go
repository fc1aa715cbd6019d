package expr

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrayOf(t *testing.T, col *series.Column) arrow.Array {
	t.Helper()
	defer col.Release()
	arr, err := col.Rechunk(memory.NewGoAllocator())
	require.NoError(t, err)
	return arr
}

func valuesOf(arr arrow.Array) []interface{} {
	col := series.FromArray("out", arr)
	defer col.Release()
	return col.Values()
}

func TestEvaluatorBinary(t *testing.T) {
	mem := memory.NewGoAllocator()
	eval := NewEvaluator(mem)

	ints := func() arrow.Array {
		return arrayOf(t, series.NewWithValidity("i", []int64{1, 2, 0, 4}, []bool{true, true, false, true}, mem))
	}
	floats := func() arrow.Array { return arrayOf(t, series.New("f", []float64{1.5, 2, 3, 0.5}, mem)) }

	tests := []struct {
		name  string
		left  func() arrow.Array
		right func() arrow.Array
		op    BinaryOp
		want  []interface{}
	}{
		{"int gt", ints, func() arrow.Array { return arrayOf(t, series.New("c", []int64{2}, mem)) }, OpGt,
			[]interface{}{false, false, nil, true}},
		{"int le float", ints, floats, OpLe, []interface{}{true, true, nil, false}},
		{"int add", ints, func() arrow.Array { return arrayOf(t, series.New("c", []int32{10}, mem)) }, OpAdd,
			[]interface{}{int64(11), int64(12), nil, int64(14)}},
		{"int div is float", ints, func() arrow.Array { return arrayOf(t, series.New("c", []int64{2}, mem)) }, OpDiv,
			[]interface{}{0.5, 1.0, nil, 2.0}},
		{"float mul", floats, floats, OpMul, []interface{}{2.25, 4.0, 9.0, 0.25}},
		{"string eq", func() arrow.Array { return arrayOf(t, series.New("s", []string{"a", "b"}, mem)) },
			func() arrow.Array { return arrayOf(t, series.New("c", []string{"b"}, mem)) }, OpEq,
			[]interface{}{false, true}},
		{"categorical lt string", func() arrow.Array {
			return arrayOf(t, series.NewCategorical("c", []*string{strp("b"), strp("a"), nil}, mem))
		}, func() arrow.Array { return arrayOf(t, series.New("c", []string{"b"}, mem)) }, OpLt,
			[]interface{}{false, true, nil}},
		{"eq null tests for null", ints, func() arrow.Array { return array.NewNull(1) }, OpEq,
			[]interface{}{false, false, true, false}},
		{"ne null tests for value", func() arrow.Array { return array.NewNull(1) }, ints, OpNe,
			[]interface{}{true, true, false, true}},
		{"gt null is null", ints, func() arrow.Array { return array.NewNull(1) }, OpGt,
			[]interface{}{nil, nil, nil, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := tt.left(), tt.right()
			defer left.Release()
			defer right.Release()

			out, err := eval.Binary(left, right, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, valuesOf(out))
		})
	}
}

func TestEvaluatorKleene(t *testing.T) {
	mem := memory.NewGoAllocator()
	eval := NewEvaluator(mem)

	// every combination of true, false and null
	left := arrayOf(t, series.NewWithValidity("l",
		[]bool{true, true, true, false, false, false, false, false, false},
		[]bool{true, true, true, true, true, true, false, false, false}, mem))
	defer left.Release()
	right := arrayOf(t, series.NewWithValidity("r",
		[]bool{true, false, false, true, false, false, true, false, false},
		[]bool{true, true, false, true, true, false, true, true, false}, mem))
	defer right.Release()

	and, err := eval.Binary(left, right, OpAnd)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, false, nil, false, false, false, nil, false, nil}, valuesOf(and))

	or, err := eval.Binary(left, right, OpOr)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, true, true, true, false, nil, true, nil, nil}, valuesOf(or))
}

func TestEvaluatorErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	eval := NewEvaluator(mem)

	three := arrayOf(t, series.New("a", []int64{1, 2, 3}, mem))
	defer three.Release()
	two := arrayOf(t, series.New("b", []int64{1, 2}, mem))
	defer two.Release()
	strs := arrayOf(t, series.New("s", []string{"x", "y", "z"}, mem))
	defer strs.Release()

	_, err := eval.Binary(three, two, OpAdd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMismatchedLength))

	_, err = eval.Binary(three, strs, OpAdd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompute))

	_, err = eval.Binary(three, strs, OpLt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompute))

	_, err = eval.Binary(three, three, OpAnd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompute))

	_, err = eval.Unary(three, UnaryNot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompute))
}

func TestEvaluatorUnary(t *testing.T) {
	mem := memory.NewGoAllocator()
	eval := NewEvaluator(mem)

	bools := arrayOf(t, series.NewWithValidity("b", []bool{true, false, false}, []bool{true, true, false}, mem))
	defer bools.Release()

	not, err := eval.Unary(bools, UnaryNot)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{false, true, nil}, valuesOf(not))

	isNull, err := eval.Unary(bools, UnaryIsNull)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{false, false, true}, valuesOf(isNull))

	isNotNull, err := eval.Unary(bools, UnaryIsNotNull)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, true, false}, valuesOf(isNotNull))

	nulls := array.NewNull(2)
	defer nulls.Release()
	notNull, err := eval.Unary(nulls, UnaryNot)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil, nil}, valuesOf(notNull))
}
