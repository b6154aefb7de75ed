package core

import (
	"go.uber.org/atomic"
)

// node is a single link in the mailbox queue.
type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// mailbox is a multi-producer single-consumer FIFO queue.
//
// Producers link new nodes by swapping the tail, so push never blocks and
// never takes a lock. Only the goroutine holding the actor's Scheduled state
// may call pop or purge.
type mailbox[T any] struct {
	// consumer side, owned by the scheduled worker
	head *node[T]

	// producer side
	tail atomic.Pointer[node[T]]

	// number of reserved slots, including pushes that are still linking
	size atomic.Int64

	// capacity bound, 0 for unbounded
	capacity int64
}

// newMailbox creates an empty mailbox. capacity <= 0 means unbounded.
func newMailbox[T any](capacity int) *mailbox[T] {
	stub := &node[T]{}
	m := &mailbox[T]{
		head: stub,
	}
	if capacity > 0 {
		m.capacity = int64(capacity)
	}
	m.tail.Store(stub)
	return m
}

// reserve claims a slot for one message. It returns false when the mailbox
// is bounded and full.
func (m *mailbox[T]) reserve() bool {
	if m.capacity == 0 {
		m.size.Inc()
		return true
	}
	for {
		n := m.size.Load()
		if n >= m.capacity {
			return false
		}
		if m.size.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// push appends msg to the queue. It returns false when the mailbox is full.
func (m *mailbox[T]) push(msg T) bool {
	if !m.reserve() {
		return false
	}
	m.link(msg)
	return true
}

// link appends msg for a slot already claimed with reserve.
func (m *mailbox[T]) link(msg T) {
	n := &node[T]{value: msg}
	prev := m.tail.Swap(n)
	prev.next.Store(n)
}

// pop removes the oldest message. ok is false when the queue is empty or
// the next producer has reserved its slot but not yet linked its node.
func (m *mailbox[T]) pop() (msg T, ok bool) {
	next := m.head.next.Load()
	if next == nil {
		return msg, false
	}
	m.head = next
	msg = next.value
	var zero T
	next.value = zero
	m.size.Dec()
	return msg, true
}

// purge discards every linked message, calling fn for each one.
func (m *mailbox[T]) purge(fn func(T)) int {
	count := 0
	for {
		msg, ok := m.pop()
		if !ok {
			return count
		}
		count++
		if fn != nil {
			fn(msg)
		}
	}
}

// len returns the number of messages in the mailbox.
func (m *mailbox[T]) len() int {
	return int(m.size.Load())
}
