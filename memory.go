package whenthen

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Releasable is implemented by Series, DataFrame and every other value
// holding Arrow memory.
type Releasable interface {
	Release()
}

// MemoryManager releases many resources at once. It is safe for concurrent
// use.
//
//	err := whenthen.WithMemoryManager(mem, func(m *whenthen.MemoryManager) error {
//		df, err := frame.WithColumns(expr)
//		if err != nil {
//			return err
//		}
//		m.Track(df)
//		return df.WriteFile("out.parquet")
//	})
type MemoryManager struct {
	allocator memory.Allocator
	mu        sync.Mutex
	resources []Releasable
}

// NewMemoryManager creates a manager handing out allocator.
func NewMemoryManager(allocator memory.Allocator) *MemoryManager {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	return &MemoryManager{allocator: allocator}
}

// Allocator returns the allocator resources should be created with.
func (m *MemoryManager) Allocator() memory.Allocator {
	return m.allocator
}

// Track registers resource for ReleaseAll. Nil resources are ignored.
func (m *MemoryManager) Track(resource Releasable) {
	if resource == nil {
		return
	}
	m.mu.Lock()
	m.resources = append(m.resources, resource)
	m.mu.Unlock()
}

// Count returns the number of tracked resources.
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// ReleaseAll releases the tracked resources, latest first.
func (m *MemoryManager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.resources) - 1; i >= 0; i-- {
		m.resources[i].Release()
	}
	m.resources = m.resources[:0]
}

// WithDataFrame runs fn on the DataFrame built by factory and releases it
// afterwards.
func WithDataFrame(factory func() (*DataFrame, error), fn func(*DataFrame) error) error {
	df, err := factory()
	if err != nil {
		return err
	}
	defer df.Release()
	return fn(df)
}

// WithMemoryManager runs fn with a fresh manager and releases everything it
// tracked.
func WithMemoryManager(allocator memory.Allocator, fn func(*MemoryManager) error) error {
	manager := NewMemoryManager(allocator)
	defer manager.ReleaseAll()
	return fn(manager)
}
