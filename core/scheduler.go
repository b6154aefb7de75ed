package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Fault describes a message whose handler panicked or returned an error.
type Fault struct {
	// ActorID of the faulting Actor
	ActorID string

	// ActorName of the faulting Actor, may be empty
	ActorName string

	// Message being handled
	Message any

	// Err is the returned error, or the recovered panic wrapped with a stack
	Err error

	// Recovered holds the raw panic value, nil for returned errors
	Recovered any

	// Stack of the panicking goroutine, nil for returned errors
	Stack []byte
}

// Panicked reports whether the fault came from a recovered panic.
func (f Fault) Panicked() bool {
	return f.Recovered != nil
}

// FaultHandler is called for every handler fault. It runs on the worker
// that handled the message.
type FaultHandler func(Fault)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPool sets the worker pool. The Scheduler does not shut down pools it
// did not create.
func WithPool(pool WorkerPool) SchedulerOption {
	return func(s *Scheduler) {
		if pool != nil {
			s.pool = pool
			s.ownsPool = false
		}
	}
}

// WithPoolSize creates a BoundedPool of the given size.
func WithPoolSize(size int) SchedulerOption {
	return func(s *Scheduler) {
		s.pool = NewBoundedPool(size)
		s.ownsPool = true
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the metrics implementation.
func WithMetrics(m Metrics) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithFaultHandler replaces the default fault handler, which logs the fault.
func WithFaultHandler(h FaultHandler) SchedulerOption {
	return func(s *Scheduler) {
		s.onFault = h
	}
}

// WithContext sets the parent of the context handed to every Receive call.
func WithContext(ctx context.Context) SchedulerOption {
	return func(s *Scheduler) {
		if ctx != nil {
			s.parent = ctx
		}
	}
}

// Scheduler dispatches runnable actors onto a shared worker pool.
//
// It holds no per-actor data. Each Actor decides through its own atomic
// state whether a work item must be submitted, so the Scheduler can be
// shared by any number of actors of any message type.
type Scheduler struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	pool     WorkerPool
	ownsPool bool

	log     *slog.Logger
	metrics Metrics
	onFault FaultHandler

	inflight atomic.Int64
	closed   atomic.Bool

	// work items submitted but not started, keyed by sequence number. Each
	// entry is removed exactly once, by the worker or by an abandoning
	// Shutdown.
	pending sync.Map
	seq     atomic.Uint64
}

// NewScheduler creates a Scheduler. Without WithPool or WithPoolSize it
// runs on a BoundedPool sized to GOMAXPROCS.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		parent:  context.Background(),
		log:     slog.Default(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = NewBoundedPool(0)
		s.ownsPool = true
	}
	if s.onFault == nil {
		s.onFault = s.logFault
	}
	s.ctx, s.cancel = context.WithCancel(s.parent)
	return s
}

// Pool returns the worker pool.
func (s *Scheduler) Pool() WorkerPool {
	return s.pool
}

// Context returns the context handed to Receive. It is cancelled by
// Shutdown.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Logger returns the scheduler logger.
func (s *Scheduler) Logger() *slog.Logger {
	return s.log
}

// Metrics returns the metrics implementation.
func (s *Scheduler) Metrics() Metrics {
	return s.metrics
}

// Inflight returns the number of work items currently running.
func (s *Scheduler) Inflight() int {
	return int(s.inflight.Load())
}

// Closed reports whether Shutdown has been called.
func (s *Scheduler) Closed() bool {
	return s.closed.Load()
}

// Shutdown stops accepting work, waits for submitted work items and then
// cancels the handler context. Actors left with pending messages stay Idle.
// When ctx expires first, work items that have not started are abandoned
// and their actors are released to Idle.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer s.cancel()

	if !s.ownsPool {
		return nil
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		n := s.abandon()
		s.log.Warn("worker pool shutdown timed out", "abandoned", n, "error", err)
		return fmt.Errorf("failed to shutdown worker pool: %w", err)
	}
	return nil
}

// submit hands one actor step to the pool. release runs instead of task
// when the work item is abandoned by Shutdown.
func (s *Scheduler) submit(task, release func()) error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}

	id := s.seq.Inc()
	s.pending.Store(id, release)

	err := s.pool.Submit(func() {
		if _, ok := s.pending.LoadAndDelete(id); !ok {
			return
		}
		s.runTask(task)
	})
	if err != nil {
		s.pending.Delete(id)
		if errors.Is(err, ErrPoolClosed) {
			return ErrSchedulerClosed
		}
		return err
	}
	return nil
}

// abandon releases every work item that has not started yet.
func (s *Scheduler) abandon() int {
	count := 0
	s.pending.Range(func(key, value any) bool {
		if _, ok := s.pending.LoadAndDelete(key); ok {
			value.(func())()
			count++
		}
		return true
	})
	return count
}

func (s *Scheduler) runTask(task func()) {
	count := s.inflight.Inc()
	s.metrics.SchedulerInflight(int(count))
	defer func() {
		count := s.inflight.Dec()
		s.metrics.SchedulerInflight(int(count))
	}()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerTaskCompleted(false)
			s.log.Error("scheduled task panicked", slog.Any("recovered", r))
		}
	}()

	task()
	s.metrics.SchedulerTaskCompleted(true)
}

// fault records a handler fault and passes it to the fault handler.
func (s *Scheduler) fault(f Fault, label string) {
	if f.Panicked() {
		s.metrics.MessagePanic(label)
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("fault handler panicked", "actor", label, "recovered", r)
		}
	}()
	s.onFault(f)
}

func (s *Scheduler) logFault(f Fault) {
	attrs := []any{
		"actor", f.ActorName,
		"actor_id", f.ActorID,
		"error", f.Err,
	}
	if f.Panicked() {
		attrs = append(attrs, "stack", string(f.Stack))
		s.log.Error("actor handler panicked", attrs...)
		return
	}
	s.log.Error("actor handler failed", attrs...)
}
