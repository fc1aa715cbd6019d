package expr

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/series"
)

// ExpandLengths aligns the three operands of a conditional. The target
// length is the longest operand; when it exceeds 1, every operand of length 1
// is repeated to it. Other lengths are left alone, so a real mismatch
// surfaces when the operands are zipped. The caller owns the returned columns.
func ExpandLengths(mem memory.Allocator, truthy, falsy, mask *series.Column) (*series.Column, *series.Column, *series.Column, error) {
	target := truthy.Len()
	if falsy.Len() > target {
		target = falsy.Len()
	}
	if mask.Len() > target {
		target = mask.Len()
	}

	expand := func(c *series.Column) (*series.Column, error) {
		if target > 1 && c.Len() == 1 {
			return series.ExpandAtIndex(mem, c, 0, target)
		}
		c.Retain()
		return c, nil
	}

	t, err := expand(truthy)
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := expand(falsy)
	if err != nil {
		t.Release()
		return nil, nil, nil, err
	}
	m, err := expand(mask)
	if err != nil {
		t.Release()
		f.Release()
		return nil, nil, nil, err
	}
	return t, f, m, nil
}
