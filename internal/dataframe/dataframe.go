// Package dataframe provides the table that expressions are evaluated against
package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/series"
)

// DataFrame represents a table of named columns sharing one height
type DataFrame struct {
	columns map[string]*series.Column
	order   []string // Maintains column order
	height  int
}

// New creates a new DataFrame from columns, taking ownership of them. All
// columns must have the same length and distinct names.
func New(cols ...*series.Column) (*DataFrame, error) {
	df := &DataFrame{
		columns: make(map[string]*series.Column, len(cols)),
		order:   make([]string, 0, len(cols)),
	}

	for i, col := range cols {
		if i == 0 {
			df.height = col.Len()
		}
		if col.Len() != df.height {
			return nil, errors.NewInvalidInputError("New",
				fmt.Sprintf("column %s has %d rows, expected %d", col.Name(), col.Len(), df.height))
		}
		if _, exists := df.columns[col.Name()]; exists {
			return nil, errors.NewInvalidInputError("New", fmt.Sprintf("duplicate column %s", col.Name()))
		}
		df.columns[col.Name()] = col
		df.order = append(df.order, col.Name())
	}

	return df, nil
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	return append([]string{}, df.order...)
}

// Height returns the number of rows
func (df *DataFrame) Height() int {
	return df.height
}

// Len returns the number of rows
func (df *DataFrame) Len() int {
	return df.height
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the column with the given name
func (df *DataFrame) Column(name string) (*series.Column, bool) {
	col, exists := df.columns[name]
	return col, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Schema returns the Arrow schema of the table
func (df *DataFrame) Schema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(df.order))
	for _, name := range df.order {
		col := df.columns[name]
		fields = append(fields, arrow.Field{Name: name, Type: col.DataType(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// WithColumn returns a new DataFrame with col added, or replacing the column
// of the same name in place. The new frame takes ownership of col and shares
// the other columns. An empty frame adopts the height of col.
func (df *DataFrame) WithColumn(col *series.Column) (*DataFrame, error) {
	if df.Width() > 0 && col.Len() != df.height {
		return nil, errors.NewInvalidInputError("WithColumn",
			fmt.Sprintf("column %s has %d rows, expected %d", col.Name(), col.Len(), df.height))
	}

	out := &DataFrame{
		columns: make(map[string]*series.Column, len(df.order)+1),
		order:   append([]string{}, df.order...),
		height:  col.Len(),
	}
	for _, name := range df.order {
		if name == col.Name() {
			continue
		}
		existing := df.columns[name]
		existing.Retain()
		out.columns[name] = existing
	}
	if !df.HasColumn(col.Name()) {
		out.order = append(out.order, col.Name())
	}
	out.columns[col.Name()] = col
	return out, nil
}

// Select returns a new DataFrame with only the specified columns
func (df *DataFrame) Select(names ...string) (*DataFrame, error) {
	cols := make([]*series.Column, 0, len(names))
	for _, name := range names {
		col, exists := df.columns[name]
		if !exists {
			return nil, errors.NewColumnNotFoundError("Select", name)
		}
		col.Retain()
		cols = append(cols, col)
	}

	out, err := New(cols...)
	if err != nil {
		for _, col := range cols {
			col.Release()
		}
		return nil, err
	}
	return out, nil
}

// Take returns a new DataFrame holding the given rows in the given order
func (df *DataFrame) Take(mem memory.Allocator, rows []int) (*DataFrame, error) {
	cols := make([]*series.Column, 0, len(df.order))
	release := func() {
		for _, col := range cols {
			col.Release()
		}
	}

	for _, name := range df.order {
		col, err := series.Take(mem, df.columns[name], rows)
		if err != nil {
			release()
			return nil, fmt.Errorf("taking column %s: %w", name, err)
		}
		cols = append(cols, col)
	}

	out, err := New(cols...)
	if err != nil {
		release()
		return nil, err
	}
	out.height = len(rows)
	return out, nil
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if df.Width() == 0 {
		return "DataFrame[empty]"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("DataFrame[%dx%d]\n", df.height, df.Width()))
	for _, name := range df.order {
		col := df.columns[name]
		sb.WriteString(fmt.Sprintf("  %s: %s\n", name, col.DataType()))
	}
	return sb.String()
}

// Release releases every column
func (df *DataFrame) Release() {
	for _, col := range df.columns {
		col.Release()
	}
}
