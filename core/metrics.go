package core

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	ObserveDuration()
}

// Metrics defines the instrumentation hooks of actors and the scheduler.
// All methods are thread-safe.
type Metrics interface {
	// Message handling
	MessageDuration(actor string) Timer
	MessageProcessed(actor string, success bool)
	MessagePanic(actor string)
	MessageDropped(actor string, reason DropReason)

	// Mailbox
	MailboxDepth(actor string, depth int)

	// Scheduler
	SchedulerInflight(count int)
	SchedulerTaskCompleted(success bool)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }

// nopMetrics is a no-op implementation of Metrics.
type nopMetrics struct{}

func (nopMetrics) MessageDuration(string) Timer      { return nopTimer{} }
func (nopMetrics) MessageProcessed(string, bool)     {}
func (nopMetrics) MessagePanic(string)               {}
func (nopMetrics) MessageDropped(string, DropReason) {}
func (nopMetrics) MailboxDepth(string, int)          {}
func (nopMetrics) SchedulerInflight(int)             {}
func (nopMetrics) SchedulerTaskCompleted(bool)       {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
