// Package parallel provides the shared worker pool used by expression evaluation.
//
// Sibling sub-expressions are evaluated as fork-join tasks on one bounded
// pool. The pool never blocks a submitter: when every worker is busy the task
// runs on the calling goroutine, so nested joins (a ternary inside a ternary
// inside a ternary) cannot exhaust the pool and deadlock.
//
// Key features:
//   - Bounded, process-wide pool backed by ants
//   - Fork-join with synchronous wait and panic propagation to the caller
//   - Order-preserving fan-out with error short-circuit for partition work
package parallel

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/paveg/whenthen/internal/config"
	"github.com/paveg/whenthen/internal/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool is a bounded goroutine pool executing fork-join tasks
type Pool struct {
	pool *ants.Pool
	size int
}

var (
	defaultPool *Pool
	defaultOnce sync.Once
)

// NewPool creates a new pool with size workers; size <= 0 uses runtime.NumCPU()
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	return &Pool{pool: pool, size: size}, nil
}

// Default returns the process-wide pool sized from the global configuration.
// A nil pool is valid and runs every task on the caller.
func Default() *Pool {
	defaultOnce.Do(func() {
		size := config.GetGlobalConfig().Workers()
		pool, err := NewPool(size)
		if err != nil {
			logutil.Warn("falling back to inline execution", zap.Int("workers", size), zap.Error(err))
			return
		}
		defaultPool = pool
	})
	return defaultPool
}

// Size returns the number of workers, or 1 for a nil pool
func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

// Join runs all tasks, the first on the calling goroutine and the rest on the
// pool, and waits for every one of them. A panic in any task is re-raised on
// the caller after all tasks finished; otherwise the first non-nil error in
// argument order is returned. Completion order never affects the result.
func (p *Pool) Join(tasks ...func() error) error {
	if len(tasks) == 0 {
		return nil
	}

	errs := make([]error, len(tasks))
	panics := make([]interface{}, len(tasks))
	run := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				panics[i] = r
			}
		}()
		errs[i] = tasks[i]()
	}

	var wg sync.WaitGroup
	for i := 1; i < len(tasks); i++ {
		idx := i
		wg.Add(1)
		job := func() {
			defer wg.Done()
			run(idx)
		}
		if p == nil || p.pool.Submit(job) != nil {
			// saturated or closed: caller runs
			job()
		}
	}
	run(0)
	wg.Wait()

	for _, r := range panics {
		if r != nil {
			panic(r)
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the pool; later submissions run on the caller
func (p *Pool) Close() {
	if p != nil {
		p.pool.Release()
	}
}

// ProcessIndexed executes work items concurrently with at most limit in
// flight, preserving input order in the result. The first error cancels the
// context handed to the remaining workers and is returned.
func ProcessIndexed[T, R any](
	ctx context.Context,
	limit int,
	items []T,
	worker func(context.Context, int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		idx, value := i, item
		g.Go(func() error {
			result, err := worker(gctx, idx, value)
			if err != nil {
				return err
			}
			results[idx] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
