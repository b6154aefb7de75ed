package core

import "github.com/pkg/errors"

// Actor errors
var (
	ErrActorExited   = errors.New("actor has exited")
	ErrMailboxFull   = errors.New("actor mailbox is full")
	ErrActorExists   = errors.New("actor already registered")
	ErrActorNotFound = errors.New("actor not found")
)

// Scheduler errors
var (
	ErrSchedulerClosed       = errors.New("scheduler is closed")
	ErrPoolClosed            = errors.New("worker pool is closed")
	ErrInvalidOverflowPolicy = errors.New("invalid overflow policy")
)
