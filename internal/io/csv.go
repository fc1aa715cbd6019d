package io

import (
	"encoding/csv"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/series"
)

const (
	trueStr  = "true"
	falseStr = "false"
)

// columnKind is the type inferred for a CSV column
type columnKind int

const (
	kindString columnKind = iota
	kindBool
	kindInt
	kindFloat
)

// Read reads CSV data and returns a DataFrame
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return dataframe.New()
	}

	var headers []string
	dataRows := records
	if r.options.Header {
		headers, dataRows = records[0], records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	cols := make([]*series.Column, 0, len(headers))
	for i, header := range headers {
		cells := make([]string, len(dataRows))
		for j, row := range dataRows {
			if i < len(row) {
				cells[j] = row[i]
			}
		}
		cols = append(cols, r.column(header, cells))
	}

	df, err := dataframe.New(cols...)
	if err != nil {
		for _, col := range cols {
			col.Release()
		}
		return nil, err
	}
	return df, nil
}

func (r *CSVReader) isNull(cell string) bool {
	return cell == "" || (r.options.NullValue != "" && cell == r.options.NullValue)
}

// column builds a column of the inferred type; null cells become nulls
func (r *CSVReader) column(name string, cells []string) *series.Column {
	valid := make([]bool, len(cells))
	for i, cell := range cells {
		valid[i] = !r.isNull(cell)
	}

	if slices.Contains(r.options.Categorical, name) {
		values := make([]*string, len(cells))
		for i := range cells {
			if valid[i] {
				values[i] = &cells[i]
			}
		}
		return series.NewCategorical(name, values, r.mem)
	}

	switch r.inferKind(cells, valid) {
	case kindBool:
		values := make([]bool, len(cells))
		for i, cell := range cells {
			values[i] = valid[i] && strings.EqualFold(cell, trueStr)
		}
		return series.NewWithValidity(name, values, valid, r.mem)
	case kindInt:
		values := make([]int64, len(cells))
		for i, cell := range cells {
			if valid[i] {
				values[i], _ = strconv.ParseInt(cell, 10, 64)
			}
		}
		return series.NewWithValidity(name, values, valid, r.mem)
	case kindFloat:
		values := make([]float64, len(cells))
		for i, cell := range cells {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(cell, 64)
			}
		}
		return series.NewWithValidity(name, values, valid, r.mem)
	default:
		return series.NewWithValidity(name, cells, valid, r.mem)
	}
}

// inferKind picks the most specific type that parses every non-null cell.
// A column without values is a string column.
func (r *CSVReader) inferKind(cells []string, valid []bool) columnKind {
	canBeBool, canBeInt, canBeFloat := true, true, true
	seen := false

	for i, cell := range cells {
		if !valid[i] {
			continue
		}
		seen = true

		if canBeBool {
			lower := strings.ToLower(cell)
			canBeBool = lower == trueStr || lower == falseStr
		}
		if canBeInt {
			_, err := strconv.ParseInt(cell, 10, 64)
			canBeInt = err == nil
		}
		if canBeFloat {
			_, err := strconv.ParseFloat(cell, 64)
			canBeFloat = err == nil
		}
	}

	switch {
	case !seen:
		return kindString
	case canBeBool:
		return kindBool
	case canBeInt:
		return kindInt
	case canBeFloat:
		return kindFloat
	default:
		return kindString
	}
}

// Write writes the DataFrame to CSV format
func (w *CSVWriter) Write(df *dataframe.DataFrame) error {
	csvWriter := csv.NewWriter(w.writer)
	csvWriter.Comma = w.options.Delimiter

	names := df.Columns()
	if w.options.Header {
		if err := csvWriter.Write(names); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	cols := make([]*series.Column, len(names))
	for j, name := range names {
		cols[j], _ = df.Column(name)
	}

	row := make([]string, len(cols))
	for i := 0; i < df.Height(); i++ {
		for j, col := range cols {
			if col.IsNull(i) {
				row[j] = w.options.NullValue
				continue
			}
			row[j] = col.GetAsString(i)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
