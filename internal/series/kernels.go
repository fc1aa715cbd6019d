package series

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
)

// ExpandAtIndex returns a column holding n copies of the value at idx
func ExpandAtIndex(mem memory.Allocator, c *Column, idx, n int) (*Column, error) {
	if idx < 0 || idx >= c.Len() {
		return nil, errors.ErrInvalidIndex
	}

	arr, i := c.locate(idx)
	b := array.NewBuilder(mem, c.DataType())
	defer b.Release()
	b.Reserve(n)

	cp, err := newCopier(b, arr)
	if err != nil {
		return nil, err
	}
	for k := 0; k < n; k++ {
		if err := cp(i); err != nil {
			return nil, err
		}
	}
	return FromArray(c.Name(), b.NewArray()), nil
}

// Take gathers the rows at indices into a new column. An index of -1 yields null.
func Take(mem memory.Allocator, c *Column, indices []int) (*Column, error) {
	arr, err := c.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	b := array.NewBuilder(mem, c.DataType())
	defer b.Release()
	b.Reserve(len(indices))

	cp, err := newCopier(b, arr)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if idx < 0 {
			b.AppendNull()
			continue
		}
		if idx >= arr.Len() {
			return nil, errors.ErrInvalidIndex
		}
		if err := cp(idx); err != nil {
			return nil, err
		}
	}
	return FromArray(c.Name(), b.NewArray()), nil
}

// Explode flattens a list column into its values in order. A null or empty
// list contributes a single null so every input row yields at least one row.
func Explode(mem memory.Allocator, c *Column) (*Column, error) {
	list, err := c.List(mem)
	if err != nil {
		return nil, err
	}
	defer list.Release()

	values := list.ListValues()
	b := array.NewBuilder(mem, values.DataType())
	defer b.Release()

	cp, err := newCopier(b, values)
	if err != nil {
		return nil, err
	}
	for i := 0; i < list.Len(); i++ {
		start, end := list.ValueOffsets(i)
		if list.IsNull(i) || start == end {
			b.AppendNull()
			continue
		}
		for j := start; j < end; j++ {
			if err := cp(int(j)); err != nil {
				return nil, err
			}
		}
	}
	return FromArray(c.Name(), b.NewArray()), nil
}

// Concat joins columns of one type end to end without copying their chunks
func Concat(name string, cols ...*Column) (*Column, error) {
	if len(cols) == 0 {
		return nil, errors.NewInvalidInputError("Concat", "no columns to concatenate")
	}

	dtype := cols[0].DataType()
	var chunks []arrow.Array
	for _, col := range cols {
		if !arrow.TypeEqual(col.DataType(), dtype) {
			return nil, errors.NewComputeError("Concat",
				fmt.Sprintf("cannot concatenate %s with %s", dtype, col.DataType()))
		}
		chunks = append(chunks, col.Chunks()...)
	}
	return FromChunks(name, dtype, chunks), nil
}

// MapListValues returns a list column with the offsets and validity of list
// and values as its flat child. values must line up with list.ListValues().
func MapListValues(name string, list *array.List, values arrow.Array) *Column {
	data := list.Data()
	out := array.NewData(arrow.ListOf(values.DataType()), data.Len(), data.Buffers(),
		[]arrow.ArrayData{values.Data()}, data.NullN(), data.Offset())
	defer out.Release()
	return FromArray(name, array.MakeFromData(out))
}
