//nolint:testpackage // requires internal access to unexported types and functions
package monitoring

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	t.Run("disabled collector only runs", func(t *testing.T) {
		collector := NewMetricsCollector(false)

		calls := 0
		err := collector.Record(OperationMetrics{Operation: "with_columns"}, func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, collector.GetMetrics())
	})

	t.Run("nil collector only runs", func(t *testing.T) {
		var collector *MetricsCollector

		calls := 0
		err := collector.Record(OperationMetrics{Operation: "agg"}, func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.False(t, collector.IsEnabled())
	})

	t.Run("enabled collector records shape and failure", func(t *testing.T) {
		collector := NewMetricsCollector(true)
		boom := errors.New("boom")

		require.NoError(t, collector.Record(OperationMetrics{Operation: "agg", Rows: 10, Groups: 3}, func() error { return nil }))
		err := collector.Record(OperationMetrics{Operation: "agg_partitioned", Rows: 10, Partitions: 4}, func() error { return boom })
		assert.ErrorIs(t, err, boom)

		metrics := collector.GetMetrics()
		require.Len(t, metrics, 2)
		assert.Equal(t, "agg", metrics[0].Operation)
		assert.Equal(t, 3, metrics[0].Groups)
		assert.False(t, metrics[0].Failed)
		assert.Equal(t, 4, metrics[1].Partitions)
		assert.True(t, metrics[1].Failed)

		summary := collector.GetSummary()
		assert.Equal(t, 2, summary.TotalOperations)
		assert.Equal(t, 1, summary.Failures)
		assert.Equal(t, 20, summary.TotalRows)
		assert.Equal(t, []string{"agg", "agg_partitioned"}, summary.Operations())

		collector.Clear()
		assert.Empty(t, collector.GetMetrics())
		assert.Equal(t, MetricsSummary{}, collector.GetSummary())
	})

	t.Run("toggle", func(t *testing.T) {
		collector := NewMetricsCollector(false)
		collector.SetEnabled(true)
		require.NoError(t, collector.Record(OperationMetrics{Operation: "x"}, func() error { return nil }))
		collector.SetEnabled(false)
		require.NoError(t, collector.Record(OperationMetrics{Operation: "y"}, func() error { return nil }))
		assert.Len(t, collector.GetMetrics(), 1)
	})

	t.Run("concurrent records", func(t *testing.T) {
		collector := NewMetricsCollector(true)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = collector.Record(OperationMetrics{Operation: "with_columns", Rows: 1}, func() error { return nil })
			}()
		}
		wg.Wait()

		assert.Equal(t, 16, collector.GetSummary().TotalRows)
	})
}
