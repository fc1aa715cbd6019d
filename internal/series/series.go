// Package series provides the column storage used by expression evaluation
package series

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
)

// Column represents a named, typed data column with Apache Arrow backend.
// The data may be split over several chunks; logical indexes run across all
// of them. Columns are immutable and renaming shares the storage.
type Column struct {
	name    string
	chunked *arrow.Chunked
}

// New creates a new Column from a slice of values
func New[T any](name string, values []T, mem memory.Allocator) *Column {
	return NewWithValidity(name, values, nil, mem)
}

// NewWithValidity creates a new Column from a slice of values where valid[i]
// false marks row i as null. A nil valid slice means every row is valid.
func NewWithValidity[T any](name string, values []T, valid []bool, mem memory.Allocator) *Column {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	var arr arrow.Array

	// Use type switching to create appropriate Arrow array
	switch v := any(values).(type) {
	case []string:
		builder := array.NewStringBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []int64:
		builder := array.NewInt64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []int32:
		builder := array.NewInt32Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []float64:
		builder := array.NewFloat64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []float32:
		builder := array.NewFloat32Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []bool:
		builder := array.NewBooleanBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []time.Time:
		builder := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"})
		defer builder.Release()
		for i, t := range v {
			if valid != nil && !valid[i] {
				builder.AppendNull()
				continue
			}
			builder.Append(arrow.Timestamp(t.UnixNano()))
		}
		arr = builder.NewArray()
	default:
		panic(fmt.Sprintf("unsupported type: %T", values))
	}

	return FromArray(name, arr)
}

// NewCategorical creates a dictionary encoded string column. Nil entries are null.
func NewCategorical(name string, values []*string, mem memory.Allocator) *Column {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Uint32, ValueType: arrow.BinaryTypes.String}
	builder := array.NewDictionaryBuilder(mem, dt).(*array.BinaryDictionaryBuilder)
	defer builder.Release()
	for _, v := range values {
		if v == nil {
			builder.AppendNull()
			continue
		}
		if err := builder.AppendString(*v); err != nil {
			panic(err)
		}
	}
	return FromArray(name, builder.NewArray())
}

// NewNull creates a column of n nulls with the Null type
func NewNull(name string, n int) *Column {
	return FromArray(name, array.NewNull(n))
}

// FromArray wraps arr in a single chunk column, taking over the caller's reference
func FromArray(name string, arr arrow.Array) *Column {
	chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
	arr.Release()
	return &Column{name: name, chunked: chunked}
}

// FromChunks builds a column over chunks of dtype. The chunks are retained.
func FromChunks(name string, dtype arrow.DataType, chunks []arrow.Array) *Column {
	return &Column{name: name, chunked: arrow.NewChunked(dtype, chunks)}
}

// Name returns the column name
func (c *Column) Name() string {
	return c.name
}

// Len returns the logical length across all chunks
func (c *Column) Len() int {
	return c.chunked.Len()
}

// DataType returns the Arrow data type of the column
func (c *Column) DataType() arrow.DataType {
	return c.chunked.DataType()
}

// NullN returns the number of null rows
func (c *Column) NullN() int {
	return c.chunked.NullN()
}

// NumChunks returns the number of backing chunks
func (c *Column) NumChunks() int {
	return len(c.chunked.Chunks())
}

// Chunks returns the backing chunks. Callers must not release them.
func (c *Column) Chunks() []arrow.Array {
	return c.chunked.Chunks()
}

// IsNull reports whether the row at index is null
func (c *Column) IsNull(index int) bool {
	arr, i := c.locate(index)
	return arr.IsNull(i)
}

// Rename returns a column with a new name sharing this column's storage
func (c *Column) Rename(name string) *Column {
	c.chunked.Retain()
	return &Column{name: name, chunked: c.chunked}
}

// Rechunk returns the column as one contiguous array addressed by the same
// logical indexes. The caller owns the returned reference.
func (c *Column) Rechunk(mem memory.Allocator) (arrow.Array, error) {
	chunks := c.chunked.Chunks()
	switch len(chunks) {
	case 0:
		b := array.NewBuilder(mem, c.DataType())
		defer b.Release()
		return b.NewArray(), nil
	case 1:
		chunks[0].Retain()
		return chunks[0], nil
	}

	// Dictionaries of separate chunks do not share value ids, so they are
	// rebuilt value by value instead of concatenated.
	if c.DataType().ID() != arrow.DICTIONARY {
		arr, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, errors.NewInternalError("Rechunk", err)
		}
		return arr, nil
	}

	b := array.NewBuilder(mem, c.DataType())
	defer b.Release()
	b.Reserve(c.Len())
	for _, chunk := range chunks {
		cp, err := newCopier(b, chunk)
		if err != nil {
			return nil, err
		}
		for i := 0; i < chunk.Len(); i++ {
			if err := cp(i); err != nil {
				return nil, err
			}
		}
	}
	return b.NewArray(), nil
}

// Bool returns the column as a contiguous boolean array. A Null typed column
// reads as all null. Any other type is a type mismatch.
func (c *Column) Bool(mem memory.Allocator) (*array.Boolean, error) {
	switch c.DataType().ID() {
	case arrow.BOOL:
	case arrow.NULL:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendNulls(c.Len())
		return b.NewBooleanArray(), nil
	default:
		return nil, errors.NewTypeMismatchError("predicate", "bool", c.DataType().String())
	}

	arr, err := c.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	return arr.(*array.Boolean), nil
}

// List returns the column as a contiguous list array
func (c *Column) List(mem memory.Allocator) (*array.List, error) {
	if c.DataType().ID() != arrow.LIST {
		return nil, errors.NewTypeMismatchError("list", "list", c.DataType().String())
	}

	arr, err := c.Rechunk(mem)
	if err != nil {
		return nil, err
	}
	return arr.(*array.List), nil
}

// GetAsString returns the value at index as a string
func (c *Column) GetAsString(index int) string {
	arr, i := c.locate(index)
	if arr.IsNull(i) {
		return "null"
	}
	return arr.ValueStr(i)
}

// String returns a string representation of the column
func (c *Column) String() string {
	return fmt.Sprintf("Column[%s]: %s (len=%d)", c.DataType(), c.name, c.Len())
}

// Retain increases the reference count of the backing storage
func (c *Column) Retain() {
	c.chunked.Retain()
}

// Release decreases the reference count of the backing storage
func (c *Column) Release() {
	if c.chunked != nil {
		c.chunked.Release()
	}
}

func (c *Column) locate(index int) (arrow.Array, int) {
	if index < 0 || index >= c.Len() {
		errors.Invariant("Column", "index %d out of bounds for length %d", index, c.Len())
	}
	for _, chunk := range c.chunked.Chunks() {
		if index < chunk.Len() {
			return chunk, index
		}
		index -= chunk.Len()
	}
	errors.Invariant("Column", "index %d not found in chunks", index)
	return nil, 0
}
