package series

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/whenthen/internal/errors"
)

// View is a reusable single-element window over one source array. Each call
// to With rebinds the window in place, so a per-group loop touches no new
// memory. The span handed to the callback is only meaningful inside it.
type View struct {
	src  arrow.Array
	span Span
}

// NewView creates a view over src
func NewView(src arrow.Array) *View {
	return &View{src: src, span: Span{Length: 1}}
}

// Source returns the array the view windows over
func (v *View) Source() arrow.Array {
	return v.src
}

// With points the view at element idx and calls fn with it
func (v *View) With(idx int, fn func(Span) error) error {
	if idx < 0 || idx >= v.src.Len() {
		errors.Invariant("View", "index %d out of bounds for length %d", idx, v.src.Len())
	}
	v.span.Offset = idx
	return fn(v.span)
}
