package series

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
)

// Grouping enumerates the row indexes that belong to each group
type Grouping interface {
	Len() int
	Size(g int) int
	Each(g int, fn func(row int) bool)
}

// AggList collects the rows of every group into one list per group
func AggList(mem memory.Allocator, c *Column, groups Grouping) (*Column, error) {
	arr, err := c.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	lb := array.NewListBuilder(mem, c.DataType())
	defer lb.Release()
	lb.Reserve(groups.Len())

	cp, err := newCopier(lb.ValueBuilder(), arr)
	if err != nil {
		return nil, err
	}
	for g := 0; g < groups.Len(); g++ {
		lb.Append(true)
		groups.Each(g, func(row int) bool {
			if row >= arr.Len() {
				errors.Invariant("AggList", "row %d out of bounds for length %d", row, arr.Len())
			}
			err = cp(row)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}
	return FromArray(c.Name(), lb.NewArray()), nil
}

// RepeatPerGroup builds one list per group holding the value at idx once for
// every row of the group.
func RepeatPerGroup(mem memory.Allocator, c *Column, idx int, groups Grouping) (*Column, error) {
	if idx < 0 || idx >= c.Len() {
		return nil, errors.ErrInvalidIndex
	}

	arr, i := c.locate(idx)
	lb := array.NewListBuilder(mem, c.DataType())
	defer lb.Release()
	lb.Reserve(groups.Len())

	cp, err := newCopier(lb.ValueBuilder(), arr)
	if err != nil {
		return nil, err
	}
	for g := 0; g < groups.Len(); g++ {
		lb.Append(true)
		for k := groups.Size(g); k > 0; k-- {
			if err := cp(i); err != nil {
				return nil, err
			}
		}
	}
	return FromArray(c.Name(), lb.NewArray()), nil
}

// ListLengths returns the length of every list in a list column, -1 for null
func ListLengths(list *array.List) []int {
	out := make([]int, list.Len())
	for i := range out {
		if list.IsNull(i) {
			out[i] = -1
			continue
		}
		start, end := list.ValueOffsets(i)
		out[i] = int(end - start)
	}
	return out
}

// ElemType returns the value type of a list type, or dt itself otherwise
func ElemType(dt arrow.DataType) arrow.DataType {
	if lt, ok := dt.(*arrow.ListType); ok {
		return lt.Elem()
	}
	return dt
}
