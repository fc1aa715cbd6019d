package expr

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/series"
	"golang.org/x/exp/constraints"
)

// Evaluator runs the element-wise kernels behind binary and unary
// expressions. Operands of length 1 broadcast against the other side.
type Evaluator struct {
	mem memory.Allocator
}

// NewEvaluator creates a new evaluator with the given memory allocator
func NewEvaluator(mem memory.Allocator) *Evaluator {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Evaluator{mem: mem}
}

// Binary applies op element-wise to left and right
func (e *Evaluator) Binary(left, right arrow.Array, op BinaryOp) (arrow.Array, error) {
	n, ok := series.BroadcastLen(left.Len(), right.Len())
	if !ok {
		return nil, fmt.Errorf("%s: %d vs %d: %w", op, left.Len(), right.Len(), errors.ErrMismatchedLength)
	}

	if left.DataType().ID() == arrow.NULL || right.DataType().ID() == arrow.NULL {
		return e.evaluateNullOperand(left, right, op, n)
	}

	switch {
	case op.IsLogical():
		return e.evaluateLogical(left, right, op, n)
	case op.IsComparison():
		return e.evaluateComparison(left, right, op, n)
	default:
		return e.evaluateArithmetic(left, right, op, n)
	}
}

// Unary applies op element-wise to operand
func (e *Evaluator) Unary(operand arrow.Array, op UnaryOp) (arrow.Array, error) {
	b := array.NewBooleanBuilder(e.mem)
	defer b.Release()
	b.Reserve(operand.Len())

	switch op {
	case UnaryIsNull, UnaryIsNotNull:
		want := op == UnaryIsNull
		for i := 0; i < operand.Len(); i++ {
			b.UnsafeAppend(operand.IsNull(i) == want)
		}
	case UnaryNot:
		if operand.DataType().ID() == arrow.NULL {
			b.AppendNulls(operand.Len())
			break
		}
		arr, ok := operand.(*array.Boolean)
		if !ok {
			return nil, errors.NewTypeMismatchError("not", "bool", operand.DataType().String())
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.UnsafeAppendBoolToBitmap(false)
				continue
			}
			b.UnsafeAppend(!arr.Value(i))
		}
	default:
		return nil, errors.NewInvalidInputError("unary", fmt.Sprintf("unsupported operator %d", op))
	}
	return b.NewArray(), nil
}

// evaluateNullOperand handles a Null typed side: equality against null tests
// for null, every other operator yields nulls.
func (e *Evaluator) evaluateNullOperand(left, right arrow.Array, op BinaryOp, n int) (arrow.Array, error) {
	other := left
	if left.DataType().ID() == arrow.NULL {
		other = right
	}

	if op == OpEq || op == OpNe {
		b := array.NewBooleanBuilder(e.mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			isNull := other.IsNull(at(other, i))
			b.UnsafeAppend(isNull == (op == OpEq))
		}
		return b.NewArray(), nil
	}

	if op.IsComparison() || op.IsLogical() {
		b := array.NewBooleanBuilder(e.mem)
		defer b.Release()
		b.AppendNulls(n)
		return b.NewArray(), nil
	}
	return array.NewNull(n), nil
}

func (e *Evaluator) evaluateLogical(left, right arrow.Array, op BinaryOp, n int) (arrow.Array, error) {
	l, ok := left.(*array.Boolean)
	if !ok {
		return nil, errors.NewTypeMismatchError(op.String(), "bool", left.DataType().String())
	}
	r, ok := right.(*array.Boolean)
	if !ok {
		return nil, errors.NewTypeMismatchError(op.String(), "bool", right.DataType().String())
	}

	b := array.NewBooleanBuilder(e.mem)
	defer b.Release()
	b.Reserve(n)

	// Kleene logic: a known dominant side decides regardless of a null.
	dominant := op == OpOr
	for i := 0; i < n; i++ {
		li, ri := at(l, i), at(r, i)
		lNull, rNull := l.IsNull(li), r.IsNull(ri)
		switch {
		case !lNull && l.Value(li) == dominant, !rNull && r.Value(ri) == dominant:
			b.UnsafeAppend(dominant)
		case lNull || rNull:
			b.UnsafeAppendBoolToBitmap(false)
		default:
			b.UnsafeAppend(!dominant)
		}
	}
	return b.NewArray(), nil
}

func (e *Evaluator) evaluateComparison(left, right arrow.Array, op BinaryOp, n int) (arrow.Array, error) {
	b := array.NewBooleanBuilder(e.mem)
	defer b.Release()
	b.Reserve(n)

	var cmp func(li, ri int) bool
	if ln, ok := newNumericReader(left); ok {
		rn, ok := newNumericReader(right)
		if !ok {
			return nil, unsupportedOperands(op, left, right)
		}
		if ln.isInt && rn.isInt {
			cmp = func(li, ri int) bool { return compare(ln.asInt(li), rn.asInt(ri), op) }
		} else {
			cmp = func(li, ri int) bool { return compare(ln.asFloat(li), rn.asFloat(ri), op) }
		}
	} else if ls, ok := newStringReader(left); ok {
		rs, ok := newStringReader(right)
		if !ok {
			return nil, unsupportedOperands(op, left, right)
		}
		cmp = func(li, ri int) bool { return compare(ls(li), rs(ri), op) }
	} else if lb, ok := left.(*array.Boolean); ok {
		rb, ok := right.(*array.Boolean)
		if !ok {
			return nil, unsupportedOperands(op, left, right)
		}
		cmp = func(li, ri int) bool { return compare(boolRank(lb.Value(li)), boolRank(rb.Value(ri)), op) }
	} else {
		return nil, unsupportedOperands(op, left, right)
	}

	for i := 0; i < n; i++ {
		li, ri := at(left, i), at(right, i)
		if left.IsNull(li) || right.IsNull(ri) {
			b.UnsafeAppendBoolToBitmap(false)
			continue
		}
		b.UnsafeAppend(cmp(li, ri))
	}
	return b.NewArray(), nil
}

func (e *Evaluator) evaluateArithmetic(left, right arrow.Array, op BinaryOp, n int) (arrow.Array, error) {
	ln, lok := newNumericReader(left)
	rn, rok := newNumericReader(right)
	if !lok || !rok {
		return nil, unsupportedOperands(op, left, right)
	}

	if ln.isInt && rn.isInt && op != OpDiv {
		b := array.NewInt64Builder(e.mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			li, ri := at(left, i), at(right, i)
			if left.IsNull(li) || right.IsNull(ri) {
				b.UnsafeAppendBoolToBitmap(false)
				continue
			}
			b.UnsafeAppend(arithmetic(ln.asInt(li), rn.asInt(ri), op))
		}
		return b.NewArray(), nil
	}

	b := array.NewFloat64Builder(e.mem)
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		li, ri := at(left, i), at(right, i)
		if left.IsNull(li) || right.IsNull(ri) {
			b.UnsafeAppendBoolToBitmap(false)
			continue
		}
		b.UnsafeAppend(arithmetic(ln.asFloat(li), rn.asFloat(ri), op))
	}
	return b.NewArray(), nil
}

// at maps logical position i to an index of arr, broadcasting length 1
func at(arr arrow.Array, i int) int {
	if arr.Len() == 1 {
		return 0
	}
	return i
}

func compare[T constraints.Ordered](l, r T, op BinaryOp) bool {
	switch op {
	case OpEq:
		return l == r
	case OpNe:
		return l != r
	case OpLt:
		return l < r
	case OpLe:
		return l <= r
	case OpGt:
		return l > r
	case OpGe:
		return l >= r
	default:
		return false
	}
}

func arithmetic[T constraints.Integer | constraints.Float](l, r T, op BinaryOp) T {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		return l / r
	default:
		return 0
	}
}

func boolRank(v bool) int {
	if v {
		return 1
	}
	return 0
}

func unsupportedOperands(op BinaryOp, left, right arrow.Array) error {
	return errors.NewComputeError(op.String(),
		fmt.Sprintf("unsupported operands %s and %s", left.DataType(), right.DataType()))
}

// numericReader reads any integer or floating point array as int64 or float64
type numericReader struct {
	isInt   bool
	asInt   func(int) int64
	asFloat func(int) float64
}

func newNumericReader(arr arrow.Array) (numericReader, bool) {
	switch a := arr.(type) {
	case *array.Int8:
		return intReader(a.Int8Values()), true
	case *array.Int16:
		return intReader(a.Int16Values()), true
	case *array.Int32:
		return intReader(a.Int32Values()), true
	case *array.Int64:
		return intReader(a.Int64Values()), true
	case *array.Uint8:
		return intReader(a.Uint8Values()), true
	case *array.Uint16:
		return intReader(a.Uint16Values()), true
	case *array.Uint32:
		return intReader(a.Uint32Values()), true
	case *array.Uint64:
		return intReader(a.Uint64Values()), true
	case *array.Float32:
		return floatReader(a.Float32Values()), true
	case *array.Float64:
		return floatReader(a.Float64Values()), true
	default:
		return numericReader{}, false
	}
}

func intReader[T constraints.Integer](values []T) numericReader {
	return numericReader{
		isInt:   true,
		asInt:   func(i int) int64 { return int64(values[i]) },
		asFloat: func(i int) float64 { return float64(values[i]) },
	}
}

func floatReader[T constraints.Float](values []T) numericReader {
	return numericReader{
		asInt:   func(i int) int64 { return int64(values[i]) },
		asFloat: func(i int) float64 { return float64(values[i]) },
	}
}

// newStringReader reads string, large string and categorical arrays
func newStringReader(arr arrow.Array) (func(int) string, bool) {
	switch a := arr.(type) {
	case *array.String:
		return a.Value, true
	case *array.LargeString:
		return a.Value, true
	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return nil, false
		}
		return func(i int) string { return dict.Value(a.GetValueIndex(i)) }, true
	default:
		return nil, false
	}
}
