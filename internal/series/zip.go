package series

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
)

// Span is a window of Length elements starting at Offset. A span of length 1
// broadcasts against longer spans.
type Span struct {
	Offset int
	Length int
}

func (s Span) at(i int) int {
	if s.Length == 1 {
		return s.Offset
	}
	return s.Offset + i
}

// BroadcastLen returns the common length of operands where length-1 operands
// broadcast. An empty operand makes the result empty. ok is false when two
// operands disagree and neither has length 1.
func BroadcastLen(lengths ...int) (target int, ok bool) {
	for _, l := range lengths {
		if l > target {
			target = l
		}
	}
	for _, l := range lengths {
		if l == 0 {
			target = 0
			break
		}
	}
	for _, l := range lengths {
		if l != target && l != 1 {
			return target, false
		}
	}
	return target, true
}

// ZipType returns the type of a selection between truthy and falsy values.
// A Null typed side takes the other side's type. Other differing types are
// not reconciled.
func ZipType(truthy, falsy arrow.DataType) (arrow.DataType, error) {
	switch {
	case truthy.ID() == arrow.NULL:
		return falsy, nil
	case falsy.ID() == arrow.NULL:
		return truthy, nil
	case arrow.TypeEqual(truthy, falsy):
		return truthy, nil
	default:
		return nil, errors.NewComputeError("zip",
			fmt.Sprintf("branches must have the same type, got %s and %s", truthy, falsy))
	}
}

// Zipper selects between two fixed source arrays under a fixed boolean mask,
// appending into one builder. It is built once and then applied to any
// number of spans over the same arrays.
type Zipper struct {
	mask   *array.Boolean
	truthy copier
	falsy  copier
}

// NewZipper binds mask, truthy and falsy to the builder b
func NewZipper(b array.Builder, mask *array.Boolean, truthy, falsy arrow.Array) (*Zipper, error) {
	tc, err := newCopier(b, truthy)
	if err != nil {
		return nil, err
	}
	fc, err := newCopier(b, falsy)
	if err != nil {
		return nil, err
	}
	return &Zipper{mask: mask, truthy: tc, falsy: fc}, nil
}

// Zip appends, for every aligned position, the truthy element where the mask
// is true and the falsy element otherwise (null and false both select falsy).
// Spans that cannot be aligned are an invariant violation.
func (z *Zipper) Zip(mask, truthy, falsy Span) error {
	target, ok := BroadcastLen(mask.Length, truthy.Length, falsy.Length)
	if !ok {
		errors.Invariant("zip", "cannot align lengths: mask %d, truthy %d, falsy %d",
			mask.Length, truthy.Length, falsy.Length)
	}

	for i := 0; i < target; i++ {
		m := mask.at(i)
		var err error
		if z.mask.IsValid(m) && z.mask.Value(m) {
			err = z.truthy(truthy.at(i))
		} else {
			err = z.falsy(falsy.at(i))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ZipWith selects truthy[i] where mask[i] is true and falsy[i] otherwise.
// Length-1 operands broadcast. The result carries the truthy name.
func ZipWith(mem memory.Allocator, mask, truthy, falsy *Column) (*Column, error) {
	dtype, err := ZipType(truthy.DataType(), falsy.DataType())
	if err != nil {
		return nil, err
	}

	m, err := mask.Bool(mem)
	if err != nil {
		return nil, err
	}
	defer m.Release()
	t, err := truthy.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	defer t.Release()
	f, err := falsy.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	defer f.Release()

	b := array.NewBuilder(mem, dtype)
	defer b.Release()
	z, err := NewZipper(b, m, t, f)
	if err != nil {
		return nil, err
	}
	if target, ok := BroadcastLen(m.Len(), t.Len(), f.Len()); ok {
		b.Reserve(target)
	}
	if err := z.Zip(Span{Length: m.Len()}, Span{Length: t.Len()}, Span{Length: f.Len()}); err != nil {
		return nil, err
	}
	return FromArray(truthy.Name(), b.NewArray()), nil
}
