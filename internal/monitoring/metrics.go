// Package monitoring records per-operation metrics for expression evaluation.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/paveg/whenthen/internal/logutil"
	"go.uber.org/zap"
)

// OperationMetrics describes one evaluated operation
type OperationMetrics struct {
	Operation  string        `json:"operation"`
	Duration   time.Duration `json:"duration"`
	Rows       int           `json:"rows"`
	Groups     int           `json:"groups"`
	Partitions int           `json:"partitions"`
	Failed     bool          `json:"failed"`
}

// MetricsCollector collects the metrics of evaluated operations. A nil
// collector, or a disabled one, only runs the operations.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{enabled: enabled}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	if mc == nil {
		return false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// Record runs fn and stores its duration along with the shape described by
// m. The error of fn is returned unchanged.
func (mc *MetricsCollector) Record(m OperationMetrics, fn func() error) error {
	if !mc.IsEnabled() {
		return fn()
	}

	start := time.Now()
	err := fn()
	m.Duration = time.Since(start)
	m.Failed = err != nil

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, m)
	mc.mu.Unlock()

	logutil.Debug("operation finished",
		zap.String("operation", m.Operation),
		zap.Duration("duration", m.Duration),
		zap.Int("rows", m.Rows),
		zap.Int("groups", m.Groups),
		zap.Int("partitions", m.Partitions),
		zap.Bool("failed", m.Failed))
	return err
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int            `json:"total_operations"`
	Failures        int            `json:"failures"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalRows       int            `json:"total_rows"`
	OperationCounts map[string]int `json:"operation_counts"`
	AverageDuration time.Duration  `json:"average_duration"`
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	summary := MetricsSummary{
		TotalOperations: len(mc.metrics),
		OperationCounts: make(map[string]int),
	}
	for _, m := range mc.metrics {
		summary.TotalDuration += m.Duration
		summary.TotalRows += m.Rows
		summary.OperationCounts[m.Operation]++
		if m.Failed {
			summary.Failures++
		}
	}
	summary.AverageDuration = summary.TotalDuration / time.Duration(len(mc.metrics))
	return summary
}

// Operations returns the distinct operation names in sorted order
func (s MetricsSummary) Operations() []string {
	names := make([]string, 0, len(s.OperationCounts))
	for name := range s.OperationCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
