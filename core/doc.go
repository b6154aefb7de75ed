// Package core implements the actor dispatch primitive for SNTRACE.
//
// An Actor owns a lock-free FIFO mailbox and a Receiver. Posting a message
// never blocks: the producer enqueues, then moves the Actor from Idle to
// Scheduled with a single compare-and-swap, and only the winner submits a
// work item to the Scheduler's shared WorkerPool. The worker delivers one
// message, publishes Idle, and resubmits if more messages arrived, so a
// handler never runs twice at once for the same Actor and no wake-up is lost.
package core
