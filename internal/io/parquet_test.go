package io_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/io"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createParquetTestDataFrame(t *testing.T, mem memory.Allocator) *dataframe.DataFrame {
	t.Helper()
	df, err := dataframe.New(
		series.New("name", []string{"Alice", "Bob", "Charlie"}, mem),
		series.NewWithValidity("age", []int64{25, 0, 35}, []bool{true, false, true}, mem),
		series.New("score", []float64{1.5, 2.5, 3.5}, mem),
		series.New("active", []bool{true, false, true}, mem),
	)
	require.NoError(t, err)
	return df
}

func TestParquetRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()

	for _, compression := range []string{"snappy", "gzip", "zstd", "uncompressed"} {
		t.Run(compression, func(t *testing.T) {
			df := createParquetTestDataFrame(t, mem)
			defer df.Release()

			options := io.ParquetOptions{Compression: compression, BatchSize: 2}
			var buf bytes.Buffer
			require.NoError(t, io.NewParquetWriter(&buf, options).Write(df))

			result, err := io.NewParquetReader(bytes.NewReader(buf.Bytes()), options, mem).Read()
			require.NoError(t, err)
			defer result.Release()

			assert.Equal(t, df.Columns(), result.Columns())
			assert.Equal(t, df.Height(), result.Height())
			for _, name := range df.Columns() {
				assert.Equal(t, values(t, df, name), values(t, result, name), name)
			}
		})
	}

	t.Run("empty file", func(t *testing.T) {
		_, err := io.NewParquetReader(bytes.NewReader(nil), io.DefaultParquetOptions(), mem).Read()
		require.Error(t, err)
	})
}

func TestReadWriteFile(t *testing.T) {
	mem := memory.NewGoAllocator()
	dir := t.TempDir()

	for _, name := range []string{"table.csv", "table.parquet"} {
		t.Run(name, func(t *testing.T) {
			df := createParquetTestDataFrame(t, mem)
			defer df.Release()

			path := filepath.Join(dir, name)
			require.NoError(t, io.WriteFile(path, df))

			back, err := io.ReadFile(path, mem)
			require.NoError(t, err)
			defer back.Release()

			assert.Equal(t, values(t, df, "age"), values(t, back, "age"))
			assert.Equal(t, values(t, df, "name"), values(t, back, "name"))
		})
	}

	_, err := io.ReadFile(filepath.Join(dir, "missing.csv"), mem)
	require.Error(t, err)
}
