package core

import (
	"context"
)

// Receiver processes messages delivered to an Actor.
type Receiver[T any] interface {
	// Receive handles a single message. It is never called concurrently
	// for the same Actor and should not block indefinitely.
	// A returned error is reported as a Fault; the Actor keeps draining.
	Receive(ctx context.Context, msg T) error
}

// ReceiverFunc adapts an ordinary function to the Receiver interface.
type ReceiverFunc[T any] func(ctx context.Context, msg T) error

// Receive calls f(ctx, msg).
func (f ReceiverFunc[T]) Receive(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

// Poster accepts messages of type T.
type Poster[T any] interface {
	// Post enqueues msg. It never blocks and drops msg after Exit.
	Post(msg T)

	// TryPost enqueues msg and reports why it was not accepted.
	TryPost(msg T) error
}

// Inspectable is the type-independent view of an Actor used by the
// Registry and by monitoring code.
type Inspectable interface {
	// ID returns the unique identifier of this Actor.
	ID() string

	// Name returns the configured name, which may be empty.
	Name() string

	// Start re-enables message intake after Exit.
	Start()

	// Exit stops message intake; queued messages are discarded once a
	// worker observes it.
	Exit()

	// Exited reports whether Exit is in effect.
	Exited() bool

	// Idle reports whether the Actor has nothing left to process.
	Idle() bool

	// WaitIdle blocks until Idle returns true or ctx is done. It fails
	// with ErrSchedulerClosed when messages are left on a closed Scheduler.
	WaitIdle(ctx context.Context) error

	// Stats returns current runtime statistics for this Actor.
	Stats() ActorStats
}
