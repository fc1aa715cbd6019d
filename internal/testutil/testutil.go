// Package testutil provides the shared fixtures and assertions of the
// package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// defaultRowCount is the default number of rows in test DataFrames.
	defaultRowCount = 8
	keyCardinality  = 9
)

// TestMemoryContext wraps a checked allocator.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// AssertReleased fails the test if any buffer of the allocator is still
// alive.
func (tmc *TestMemoryContext) AssertReleased() {
	tmc.tb.Helper()
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates an allocator that tracks every live buffer.
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.AssertReleased()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()), tb: tb}
}

// TestDataFrameOption configures test DataFrame creation.
type TestDataFrameOption func(*testDataFrameConfig)

type testDataFrameConfig struct {
	includeNulls bool
	rowCount     int
	withFlag     bool
}

// WithNulls puts nulls into both the keys and the values.
func WithNulls() TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.includeNulls = true
	}
}

// WithRowCount sets the number of rows in test data.
func WithRowCount(count int) TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.rowCount = count
	}
}

// WithFlagColumn adds a boolean 'flag' column usable as a row predicate.
func WithFlagColumn() TestDataFrameOption {
	return func(cfg *testDataFrameConfig) {
		cfg.withFlag = true
	}
}

// CreateTestDataFrame creates a keyed table for grouping tests. Row i holds
//   - key (string): "k{(7*i) mod 9}", null every 13th row WithNulls
//   - v (int64): i, null every 11th row WithNulls
//   - flag (bool): i is even, only WithFlagColumn
//
// The keys interleave so every group spans distant rows.
func CreateTestDataFrame(tb testing.TB, mem memory.Allocator, opts ...TestDataFrameOption) *dataframe.DataFrame {
	tb.Helper()
	cfg := &testDataFrameConfig{rowCount: defaultRowCount}
	for _, opt := range opts {
		opt(cfg)
	}

	n := cfg.rowCount
	keys := make([]string, n)
	keyValid := make([]bool, n)
	values := make([]int64, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("k%d", (i*7)%keyCardinality)
		keyValid[i] = !cfg.includeNulls || i%13 != 0
		values[i] = int64(i)
		valid[i] = !cfg.includeNulls || i%11 != 0
	}

	cols := []*series.Column{
		series.NewWithValidity("key", keys, keyValid, mem),
		series.NewWithValidity("v", values, valid, mem),
	}
	if cfg.withFlag {
		flags := make([]bool, n)
		for i := range flags {
			flags[i] = i%2 == 0
		}
		cols = append(cols, series.New("flag", flags, mem))
	}

	df, err := dataframe.New(cols...)
	require.NoError(tb, err)
	return df
}

// AssertDataFrameEqual compares column names, order and values.
func AssertDataFrameEqual(t *testing.T, expected, actual *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, expected, "expected DataFrame should not be nil")
	require.NotNil(t, actual, "actual DataFrame should not be nil")

	assert.Equal(t, expected.Len(), actual.Len(), "DataFrame lengths should match")
	require.Equal(t, expected.Columns(), actual.Columns(), "DataFrame columns should match")

	for _, name := range expected.Columns() {
		want, _ := expected.Column(name)
		got, _ := actual.Column(name)
		assert.Equal(t, want.Values(), got.Values(), "column %s data should match", name)
	}
}

// AssertColumnValues checks one column of df.
func AssertColumnValues(t *testing.T, df *dataframe.DataFrame, name string, expected []interface{}) {
	t.Helper()

	col, ok := df.Column(name)
	require.True(t, ok, "DataFrame should have column %s", name)
	assert.Equal(t, expected, col.Values(), "column %s", name)
}
