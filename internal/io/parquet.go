package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/series"
)

// Read reads Parquet data and returns a DataFrame. Column chunks are kept
// as they are read, without copying.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	props := pqarrow.ArrowReadProperties{BatchSize: int64(r.options.BatchSize)}
	arrowReader, err := pqarrow.NewFileReader(pqReader, props, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	cols := make([]*series.Column, 0, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		column := table.Column(i)
		cols = append(cols, series.FromChunks(column.Name(), column.DataType(), column.Data().Chunks()))
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

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// Write writes the DataFrame to Parquet format
func (w *ParquetWriter) Write(df *dataframe.DataFrame) (err error) {
	table := toTable(df)
	defer table.Release()

	batch := int64(w.options.BatchSize)
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression(w.options.Compression)),
		parquet.WithBatchSize(batch),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(w.mem), pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(table.Schema(), w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing file writer: %w", closeErr)
		}
	}()

	if err := writer.WriteTable(table, batch); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	return nil
}

// toTable shares the chunks of every column of df in an Arrow table
func toTable(df *dataframe.DataFrame) arrow.Table {
	schema := df.Schema()
	columns := make([]arrow.Column, 0, df.Width())
	for i, name := range df.Columns() {
		col, _ := df.Column(name)
		chunked := arrow.NewChunked(col.DataType(), col.Chunks())
		columns = append(columns, *arrow.NewColumn(schema.Field(i), chunked))
		chunked.Release()
	}

	table := array.NewTable(schema, columns, int64(df.Height()))
	for i := range columns {
		columns[i].Release()
	}
	return table
}
