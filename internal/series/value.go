package series

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Value returns the Go value at index, or nil for a null row. Lists come back
// as []interface{} and categorical values as their string.
func (c *Column) Value(index int) interface{} {
	arr, i := c.locate(index)
	return valueAt(arr, i)
}

// Values returns every row as a Go value, nil for nulls
func (c *Column) Values() []interface{} {
	out := make([]interface{}, 0, c.Len())
	for _, chunk := range c.chunked.Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			out = append(out, valueAt(chunk, i))
		}
	}
	return out
}

func valueAt(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return a.Value(i)
	case *array.Uint16:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Dictionary:
		return valueAt(a.Dictionary(), a.GetValueIndex(i))
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]interface{}, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, valueAt(values, int(j)))
		}
		return out
	default:
		return arr.ValueStr(i)
	}
}
