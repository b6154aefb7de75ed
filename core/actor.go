package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// idlePollInterval is how often WaitIdle re-checks an Actor.
const idlePollInterval = 2 * time.Millisecond

// Actor serializes the handling of messages of type T over a shared
// Scheduler. Any goroutine may Post; the Receiver runs on at most one
// worker at a time, in the order messages were enqueued.
type Actor[T any] struct {
	id    string
	name  string
	label string

	sched    *Scheduler
	receiver Receiver[T]
	mailbox  *mailbox[T]
	opts     ActorOptions

	// ActorState, changed only through CAS or by the scheduled worker
	state atomic.Int32

	// set by Exit, cleared by Start
	exited atomic.Bool

	// statistics
	posted        atomic.Uint64
	processed     atomic.Uint64
	dropped       atomic.Uint64
	faults        atomic.Uint64
	createdAt     time.Time
	lastMessageAt atomic.Time

	// work item handed to the pool, allocated once
	step func()
}

// NewActor creates an Actor bound to sched. The Actor accepts messages
// immediately.
func NewActor[T any](sched *Scheduler, r Receiver[T], opts ...ActorOption) *Actor[T] {
	o := DefaultActorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Overflow == OverflowUnbounded {
		o.MailboxCapacity = 0
	}

	a := &Actor[T]{
		id:        o.Name,
		name:      o.Name,
		label:     o.Name,
		sched:     sched,
		receiver:  r,
		mailbox:   newMailbox[T](o.MailboxCapacity),
		opts:      o,
		createdAt: time.Now(),
	}
	if a.id == "" {
		a.id = uuid.NewString()
		a.label = "unnamed"
	}
	a.state.Store(int32(ActorStateIdle))
	a.step = a.run

	return a
}

// ID returns the unique identifier of this Actor.
func (a *Actor[T]) ID() string {
	return a.id
}

// Name returns the configured name.
func (a *Actor[T]) Name() string {
	return a.name
}

// Post enqueues msg for delivery. It never blocks and never fails; a
// message posted after Exit, or refused by a full mailbox, is dropped.
func (a *Actor[T]) Post(msg T) {
	_ = a.TryPost(msg)
}

// TryPost enqueues msg like Post but reports a refused message.
// It returns ErrActorExited after Exit and ErrMailboxFull when the
// mailbox uses OverflowReject and is full. Under OverflowDropNewest a
// refused message is dropped silently.
func (a *Actor[T]) TryPost(msg T) error {
	if a.exited.Load() {
		a.drop(msg, DropExited)
		return ErrActorExited
	}

	if !a.mailbox.push(msg) {
		a.drop(msg, DropOverflow)
		if a.opts.Overflow == OverflowReject {
			return ErrMailboxFull
		}
		return nil
	}

	a.posted.Inc()
	a.sched.metrics.MailboxDepth(a.label, a.mailbox.len())

	return a.schedule()
}

// Start clears the exit flag so that Post accepts messages again. An Actor
// that already stopped draining becomes Idle and is rescheduled when
// messages are pending. Messages posted while a worker is still discarding
// the queue of the previous Exit may be discarded with it.
func (a *Actor[T]) Start() {
	a.exited.Store(false)
	a.revive()
}

// Exit makes Post drop new messages. Messages still queued are discarded
// once a worker observes the flag. A handler already running completes.
func (a *Actor[T]) Exit() {
	a.exited.Store(true)

	// wake a worker so the queue is discarded promptly
	if a.mailbox.len() > 0 {
		if err := a.schedule(); err != nil {
			a.sched.log.Debug("failed to schedule actor after exit", "actor", a.label, "error", err)
		}
	}
}

// Exited reports whether Exit is in effect.
func (a *Actor[T]) Exited() bool {
	return a.exited.Load()
}

// State returns the current scheduling state.
func (a *Actor[T]) State() ActorState {
	return ActorState(a.state.Load())
}

// Len returns the number of queued messages.
func (a *Actor[T]) Len() int {
	return a.mailbox.len()
}

// Idle reports whether the Actor has no queued message and no running
// handler. An Actor that reached the Exited state is also idle.
func (a *Actor[T]) Idle() bool {
	switch a.State() {
	case ActorStateExited:
		return true
	case ActorStateIdle:
		return a.mailbox.len() == 0
	default:
		return false
	}
}

// WaitIdle blocks until Idle returns true or ctx is done. It fails with
// ErrSchedulerClosed when messages are left queued on a closed Scheduler.
func (a *Actor[T]) WaitIdle(ctx context.Context) error {
	if a.Idle() {
		return nil
	}

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if a.stranded() {
			return fmt.Errorf("actor %s left %d messages: %w", a.id, a.mailbox.len(), ErrSchedulerClosed)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("actor %s did not become idle: %w", a.id, ctx.Err())
		case <-ticker.C:
			if a.Idle() {
				return nil
			}
		}
	}
}

func (a *Actor[T]) stranded() bool {
	return a.sched.Closed() && a.State() == ActorStateIdle && a.mailbox.len() > 0
}

// Stats returns current runtime statistics for this Actor.
func (a *Actor[T]) Stats() ActorStats {
	return ActorStats{
		ID:                a.id,
		Name:              a.name,
		State:             a.State(),
		Exited:            a.exited.Load(),
		MailboxSize:       a.mailbox.len(),
		MessagesPosted:    a.posted.Load(),
		MessagesProcessed: a.processed.Load(),
		MessagesDropped:   a.dropped.Load(),
		Faults:            a.faults.Load(),
		CreatedAt:         a.createdAt,
		LastMessageAt:     a.lastMessageAt.Load(),
	}
}

// schedule moves an Idle Actor to Scheduled and submits one step. Only the
// goroutine that wins the CAS submits.
func (a *Actor[T]) schedule() error {
	if !a.state.CompareAndSwap(int32(ActorStateIdle), int32(ActorStateScheduled)) {
		return nil
	}
	if err := a.sched.submit(a.step, a.release); err != nil {
		a.state.Store(int32(ActorStateIdle))
		return err
	}
	return nil
}

// release publishes Idle for a step the Scheduler abandoned. Pending
// messages stay queued.
func (a *Actor[T]) release() {
	a.state.Store(int32(ActorStateIdle))
}

// revive moves an Exited Actor back to Idle and schedules it when messages
// arrived in between.
func (a *Actor[T]) revive() {
	a.state.CompareAndSwap(int32(ActorStateExited), int32(ActorStateIdle))
	if a.mailbox.len() == 0 {
		return
	}
	if err := a.schedule(); err != nil {
		a.sched.log.Debug("failed to reschedule actor", "actor", a.label, "error", err)
	}
}

// run is one work item: deliver at most one message, then either release
// the Actor or resubmit it.
func (a *Actor[T]) run() {
	if a.exited.Load() {
		a.finishExit()
		return
	}

	msg, popped := a.mailbox.pop()
	if popped {
		a.deliver(msg)
	}

	if a.exited.Load() {
		a.finishExit()
		return
	}

	a.state.Store(int32(ActorStateIdle))

	// a producer may have enqueued after the pop but lost its CAS
	if a.mailbox.len() > 0 {
		if !popped {
			// counted but not linked yet; let the producer finish
			runtime.Gosched()
		}
		if err := a.schedule(); err != nil {
			a.sched.log.Debug("failed to reschedule actor", "actor", a.label, "error", err)
		}
	}
}

// finishExit discards the queue and parks the Actor in Exited. Start may
// race with it, so the flag is checked again after the state is published.
func (a *Actor[T]) finishExit() {
	a.mailbox.purge(func(msg T) {
		a.drop(msg, DropDiscarded)
	})
	a.state.Store(int32(ActorStateExited))

	if !a.exited.Load() {
		a.revive()
	}
}

// deliver invokes the Receiver and turns a panic or returned error into a
// Fault.
func (a *Actor[T]) deliver(msg T) {
	a.processed.Inc()
	a.lastMessageAt.Store(time.Now())

	timer := a.sched.metrics.MessageDuration(a.label)
	recovered, stack, err := a.invoke(msg)
	timer.ObserveDuration()

	a.sched.metrics.MessageProcessed(a.label, err == nil)
	a.sched.metrics.MailboxDepth(a.label, a.mailbox.len())
	if err == nil {
		return
	}

	a.faults.Inc()
	a.sched.fault(Fault{
		ActorID:   a.id,
		ActorName: a.name,
		Message:   msg,
		Err:       err,
		Recovered: recovered,
		Stack:     stack,
	}, a.label)
}

func (a *Actor[T]) invoke(msg T) (recovered any, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			stack = debug.Stack()
			if e, ok := r.(error); ok {
				err = errors.WithStack(e)
			} else {
				err = errors.Errorf("panic: %v", r)
			}
		}
	}()

	err = a.receiver.Receive(a.sched.ctx, msg)
	return nil, nil, err
}

func (a *Actor[T]) drop(msg T, reason DropReason) {
	a.dropped.Inc()
	a.sched.metrics.MessageDropped(a.label, reason)
	if a.opts.OnDrop != nil {
		a.opts.OnDrop(a.id, msg, reason)
	}
}

var (
	_ Poster[int] = (*Actor[int])(nil)
	_ Inspectable = (*Actor[int])(nil)
)
