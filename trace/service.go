package trace

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/najoast/sntrace/core"
)

// ServiceName is the default actor name of the tracing Service.
const ServiceName = "trace.service"

// Logger accepts records for delivery.
type Logger interface {
	Log(r *Record)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDiagnostics sets the channel for sink failures.
func WithDiagnostics(d Diagnostics) ServiceOption {
	return func(s *Service) {
		if d != nil {
			s.diag = d
		}
	}
}

// WithActorOptions passes options to the underlying actor.
func WithActorOptions(opts ...core.ActorOption) ServiceOption {
	return func(s *Service) {
		s.actorOpts = append(s.actorOpts, opts...)
	}
}

// Service is the long-lived logging actor. Records posted from any goroutine
// reach the sink one at a time, in posting order, on the scheduler's shared
// workers.
type Service struct {
	*core.Actor[*Record]

	sink      Sink
	diag      Diagnostics
	actorOpts []core.ActorOption

	// set by Shutdown to refuse new records while the queue drains
	closing atomic.Bool
}

// NewService creates the tracing Service on sched.
func NewService(sched *core.Scheduler, sink Sink, opts ...ServiceOption) *Service {
	s := &Service{
		sink:      sink,
		diag:      NewStderrDiagnostics(),
		actorOpts: []core.ActorOption{core.WithName(ServiceName)},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Actor = core.NewActor[*Record](sched, s, s.actorOpts...)
	return s
}

// Log posts r. It never blocks; records are dropped after Shutdown.
func (s *Service) Log(r *Record) {
	if r == nil || s.closing.Load() {
		return
	}
	s.Post(r)
}

// Receive forwards one record to the sink. Sink failures are reported to the
// diagnostics channel and never stop the Service.
func (s *Service) Receive(ctx context.Context, r *Record) error {
	if r == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.diag.Report("trace.Service.Receive", errors.Errorf("sink panicked: %v", rec))
		}
	}()

	if err := s.sink.Write(ctx, r); err != nil {
		s.diag.Report("trace.Service.Receive", fmt.Errorf("failed to write record %s: %w", r.ID, err))
	}
	return nil
}

// Shutdown refuses new records, waits until the queued ones are written and
// then exits the actor. The actor exits even when ctx expires first.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	defer s.Exit()

	if err := s.WaitIdle(ctx); err != nil {
		return fmt.Errorf("failed to drain tracing service: %w", err)
	}
	return nil
}

// Resume re-enables intake after Shutdown.
func (s *Service) Resume() {
	s.closing.Store(false)
	s.Start()
}

// Closing reports whether Shutdown has been called.
func (s *Service) Closing() bool {
	return s.closing.Load()
}
