package core

import (
	"time"
)

// ActorState represents the execution readiness of an Actor.
type ActorState int32

const (
	// ActorStateIdle means the Actor has no worker assigned and its mailbox
	// was empty the last time a worker looked at it
	ActorStateIdle ActorState = iota

	// ActorStateScheduled means a work item for the Actor has been handed to
	// the worker pool, or a worker is currently running its handler
	ActorStateScheduled

	// ActorStateExited means a worker observed Exit and stopped draining
	ActorStateExited
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateScheduled:
		return "scheduled"
	case ActorStateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// OverflowPolicy decides what Post does when a bounded mailbox is full.
type OverflowPolicy uint8

const (
	// OverflowUnbounded never rejects a message. The mailbox grows without
	// limit under sustained overload.
	OverflowUnbounded OverflowPolicy = iota

	// OverflowDropNewest silently drops the message being posted when the
	// mailbox is at capacity
	OverflowDropNewest

	// OverflowReject behaves like OverflowDropNewest for Post, but TryPost
	// returns ErrMailboxFull so the caller can react
	OverflowReject
)

// String returns the string representation of OverflowPolicy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowUnbounded:
		return "unbounded"
	case OverflowDropNewest:
		return "drop_newest"
	case OverflowReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy converts a configuration string into an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "unbounded":
		return OverflowUnbounded, nil
	case "drop_newest", "drop":
		return OverflowDropNewest, nil
	case "reject":
		return OverflowReject, nil
	default:
		return OverflowUnbounded, ErrInvalidOverflowPolicy
	}
}

// DropReason tells a DropHandler why a message never reached the handler.
type DropReason string

const (
	// DropExited is used for messages posted after Exit
	DropExited DropReason = "exited"

	// DropOverflow is used for messages rejected by a full mailbox
	DropOverflow DropReason = "overflow"

	// DropDiscarded is used for messages left in the mailbox when a worker
	// observed Exit
	DropDiscarded DropReason = "discarded"
)

// DropHandler is notified of every message that will never be delivered.
// It runs on the goroutine that dropped the message and must not block.
type DropHandler func(actorID string, msg any, reason DropReason)

// ActorOptions contains configuration options for creating an Actor.
type ActorOptions struct {
	// Name is a human-readable name for the Actor, also used as its ID
	Name string

	// MailboxCapacity bounds the mailbox; 0 means unbounded
	MailboxCapacity int

	// Overflow selects the behavior once MailboxCapacity is reached
	Overflow OverflowPolicy

	// OnDrop is called for dropped messages (optional)
	OnDrop DropHandler
}

// DefaultActorOptions returns sensible default options.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		Name:            "",
		MailboxCapacity: 0,
		Overflow:        OverflowUnbounded,
	}
}

// ActorOption configures an Actor at construction time.
type ActorOption func(*ActorOptions)

// WithName sets the Actor name.
func WithName(name string) ActorOption {
	return func(o *ActorOptions) {
		o.Name = name
	}
}

// WithMailboxCapacity bounds the mailbox. It only takes effect together with
// an overflow policy other than OverflowUnbounded.
func WithMailboxCapacity(capacity int) ActorOption {
	return func(o *ActorOptions) {
		if capacity > 0 {
			o.MailboxCapacity = capacity
		}
	}
}

// WithOverflow sets the overflow policy.
func WithOverflow(policy OverflowPolicy) ActorOption {
	return func(o *ActorOptions) {
		o.Overflow = policy
	}
}

// WithDropHandler registers a callback for dropped messages.
func WithDropHandler(h DropHandler) ActorOption {
	return func(o *ActorOptions) {
		o.OnDrop = h
	}
}

// WithActorOptions replaces all options at once.
func WithActorOptions(opts ActorOptions) ActorOption {
	return func(o *ActorOptions) {
		*o = opts
	}
}

// ActorStats contains runtime statistics for an Actor.
type ActorStats struct {
	// ID of the Actor
	ID string

	// Name of the Actor
	Name string

	// Current scheduling state
	State ActorState

	// Exited reports whether Post is currently refusing messages
	Exited bool

	// Messages currently in mailbox
	MailboxSize int

	// Messages accepted by Post
	MessagesPosted uint64

	// Messages handed to the handler
	MessagesProcessed uint64

	// Messages refused or discarded
	MessagesDropped uint64

	// Handler panics and returned errors
	Faults uint64

	// Time when Actor was created
	CreatedAt time.Time

	// Last message processing time
	LastMessageAt time.Time
}
