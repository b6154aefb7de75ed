package core

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// WorkerPool executes submitted work items on a shared set of workers.
type WorkerPool interface {
	// Submit hands fn to the pool. It never blocks waiting for a free worker.
	Submit(fn func()) error

	// Shutdown stops accepting work and waits for queued and running work
	// items until ctx is done.
	Shutdown(ctx context.Context) error

	// Size returns the concurrency bound, 0 for unbounded pools.
	Size() int
}

// BoundedPool runs at most Size work items at a time. Work items that find
// every worker busy wait in FIFO order on a weighted semaphore.
type BoundedPool struct {
	sem  *semaphore.Weighted
	size int

	// cancelled once Shutdown gives up waiting
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewBoundedPool creates a pool of size workers. size <= 0 uses
// runtime.GOMAXPROCS(0).
func NewBoundedPool(size int) *BoundedPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BoundedPool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules fn. The calling goroutine never waits for a worker.
func (p *BoundedPool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		fn()
	}()
	return nil
}

// Shutdown stops accepting work and waits for pending work items. When ctx
// expires first, work items still waiting for a worker are abandoned.
func (p *BoundedPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed.Store(true)
	p.mu.Unlock()

	return waitGroupContext(ctx, &p.wg, p.cancel)
}

// Size returns the number of workers.
func (p *BoundedPool) Size() int {
	return p.size
}

// Closed reports whether Shutdown has been called.
func (p *BoundedPool) Closed() bool {
	return p.closed.Load()
}

// GoPool starts one goroutine per work item with no concurrency bound.
// It suits tests and small programs.
type GoPool struct {
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewGoPool creates an unbounded pool.
func NewGoPool() *GoPool {
	return &GoPool{}
}

// Submit starts fn on a new goroutine.
func (p *GoPool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return nil
}

// Shutdown stops accepting work and waits for running work items.
func (p *GoPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed.Store(true)
	p.mu.Unlock()

	return waitGroupContext(ctx, &p.wg, nil)
}

// Size returns 0, the pool is unbounded.
func (p *GoPool) Size() int {
	return 0
}

// waitGroupContext waits for wg or ctx. onTimeout runs when ctx wins.
func waitGroupContext(ctx context.Context, wg *sync.WaitGroup, onTimeout func()) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if onTimeout != nil {
			onTimeout()
		}
		return ctx.Err()
	}
}
