package series

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/whenthen/internal/errors"
)

// copier appends element i of one fixed source array to one fixed builder.
// Resolving the source and builder types happens once when the copier is
// built, so the per-element path does no type switching.
type copier func(i int) error

func newCopier(b array.Builder, src arrow.Array) (copier, error) {
	if src.DataType().ID() == arrow.NULL {
		return func(int) error {
			b.AppendNull()
			return nil
		}, nil
	}

	appendValid, err := validCopier(b, src)
	if err != nil {
		return nil, err
	}

	if src.NullN() == 0 {
		return appendValid, nil
	}
	return func(i int) error {
		if src.IsNull(i) {
			b.AppendNull()
			return nil
		}
		return appendValid(i)
	}, nil
}

func validCopier(b array.Builder, src arrow.Array) (copier, error) {
	switch a := src.(type) {
	case *array.Boolean:
		return primitive(b, src, a.Value)
	case *array.Int8:
		return primitive(b, src, a.Value)
	case *array.Int16:
		return primitive(b, src, a.Value)
	case *array.Int32:
		return primitive(b, src, a.Value)
	case *array.Int64:
		return primitive(b, src, a.Value)
	case *array.Uint8:
		return primitive(b, src, a.Value)
	case *array.Uint16:
		return primitive(b, src, a.Value)
	case *array.Uint32:
		return primitive(b, src, a.Value)
	case *array.Uint64:
		return primitive(b, src, a.Value)
	case *array.Float32:
		return primitive(b, src, a.Value)
	case *array.Float64:
		return primitive(b, src, a.Value)
	case *array.String:
		return primitive(b, src, a.Value)
	case *array.LargeString:
		return primitive(b, src, a.Value)
	case *array.Binary:
		return primitive(b, src, a.Value)
	case *array.Date32:
		return primitive(b, src, a.Value)
	case *array.Date64:
		return primitive(b, src, a.Value)
	case *array.Timestamp:
		return primitive(b, src, a.Value)
	case *array.Dictionary:
		return dictionaryCopier(b, a)
	case *array.List:
		return listCopier(b, a)
	default:
		return nil, errors.NewUnsupportedTypeError("copy", src.DataType().String())
	}
}

func primitive[T any](b array.Builder, src arrow.Array, value func(int) T) (copier, error) {
	tb, ok := b.(interface{ Append(T) })
	if !ok {
		return nil, builderMismatch(b, src)
	}
	return func(i int) error {
		tb.Append(value(i))
		return nil
	}, nil
}

func dictionaryCopier(b array.Builder, src *array.Dictionary) (copier, error) {
	dict, ok := src.Dictionary().(*array.String)
	if !ok {
		return nil, errors.NewUnsupportedTypeError("copy", src.DataType().String())
	}

	switch db := b.(type) {
	case *array.BinaryDictionaryBuilder:
		return func(i int) error {
			return db.AppendString(dict.Value(src.GetValueIndex(i)))
		}, nil
	case *array.StringBuilder:
		return func(i int) error {
			db.Append(dict.Value(src.GetValueIndex(i)))
			return nil
		}, nil
	default:
		return nil, builderMismatch(b, src)
	}
}

func listCopier(b array.Builder, src *array.List) (copier, error) {
	lb, ok := b.(*array.ListBuilder)
	if !ok {
		return nil, builderMismatch(b, src)
	}
	child, err := newCopier(lb.ValueBuilder(), src.ListValues())
	if err != nil {
		return nil, err
	}
	return func(i int) error {
		start, end := src.ValueOffsets(i)
		lb.Append(true)
		for j := start; j < end; j++ {
			if err := child(int(j)); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func builderMismatch(b array.Builder, src arrow.Array) error {
	return errors.NewComputeError("copy", fmt.Sprintf("cannot append %s values to a %T", src.DataType(), b))
}
