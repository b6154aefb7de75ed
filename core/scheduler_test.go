package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMetrics counts calls by kind.
type fakeMetrics struct {
	mu        sync.Mutex
	processed map[bool]int
	panics    int
	dropped   map[DropReason]int
	completed int
	timers    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		processed: map[bool]int{},
		dropped:   map[DropReason]int{},
	}
}

func (m *fakeMetrics) MessageDuration(string) Timer {
	m.mu.Lock()
	m.timers++
	m.mu.Unlock()
	return NopTimer()
}

func (m *fakeMetrics) MessageProcessed(_ string, ok bool) {
	m.mu.Lock()
	m.processed[ok]++
	m.mu.Unlock()
}

func (m *fakeMetrics) MessagePanic(string) {
	m.mu.Lock()
	m.panics++
	m.mu.Unlock()
}

func (m *fakeMetrics) MessageDropped(_ string, reason DropReason) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *fakeMetrics) MailboxDepth(string, int) {}
func (m *fakeMetrics) SchedulerInflight(int)    {}

func (m *fakeMetrics) SchedulerTaskCompleted(bool) {
	m.mu.Lock()
	m.completed++
	m.mu.Unlock()
}

func TestSchedulerDefaults(t *testing.T) {
	sched := newTestScheduler(t)

	require.NotNil(t, sched.Pool())
	assert.Greater(t, sched.Pool().Size(), 0)
	assert.NotNil(t, sched.Logger())
	assert.NotNil(t, sched.Metrics())
	assert.False(t, sched.Closed())
	assert.NoError(t, sched.Context().Err())
}

func TestSchedulerShutdown(t *testing.T) {
	sched := NewScheduler(WithPoolSize(2))
	rec := &recorder[int]{}
	a := NewActor[int](sched, rec)
	a.Post(1)
	waitIdle(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, sched.Shutdown(ctx))
	require.NoError(t, sched.Shutdown(ctx))

	assert.True(t, sched.Closed())
	assert.Error(t, sched.Context().Err())

	assert.ErrorIs(t, a.TryPost(2), ErrSchedulerClosed)
	assert.Equal(t, ActorStateIdle, a.State())
	assert.Equal(t, []int{1}, rec.Received())
}

func TestSchedulerShutdownTimeoutReleasesWaitingActors(t *testing.T) {
	sched := NewScheduler(WithPoolSize(1))

	b := newBlocker()
	busy := NewActor[struct{}](sched, b)
	busy.Post(struct{}{})
	<-b.started

	rec := &recorder[int]{}
	a := NewActor[int](sched, rec)
	a.Post(1)
	require.Equal(t, ActorStateScheduled, a.State())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sched.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(b.release)
	require.Eventually(t, func() bool { return busy.State() == ActorStateIdle }, waitFor, time.Millisecond)

	// the waiting step never ran, the message stays queued
	assert.Equal(t, ActorStateIdle, a.State())
	assert.Equal(t, 1, a.Len())
	assert.Empty(t, rec.Received())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), waitFor)
	defer waitCancel()
	err = a.WaitIdle(waitCtx)
	require.ErrorIs(t, err, ErrSchedulerClosed)
	assert.NoError(t, waitCtx.Err())
}

func TestSchedulerDoesNotShutdownInjectedPool(t *testing.T) {
	pool := NewBoundedPool(1)
	sched := NewScheduler(WithPool(pool))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, sched.Shutdown(ctx))

	assert.False(t, pool.Closed())
	require.NoError(t, pool.Shutdown(ctx))
}

func TestSchedulerReportsMetrics(t *testing.T) {
	m := newFakeMetrics()
	sched := newTestScheduler(t, WithPoolSize(1), WithMetrics(m), WithFaultHandler(func(Fault) {}))

	a := NewActor[int](sched, ReceiverFunc[int](func(_ context.Context, msg int) error {
		switch msg {
		case 1:
			return errors.New("failed")
		case 2:
			panic("boom")
		}
		return nil
	}), WithName("metered"))

	a.Post(0)
	a.Post(1)
	a.Post(2)
	waitIdle(t, a)
	a.Exit()
	a.Post(3)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.completed >= 3
	}, waitFor, time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 3, m.timers)
	assert.Equal(t, 1, m.processed[true])
	assert.Equal(t, 2, m.processed[false])
	assert.Equal(t, 1, m.panics)
	assert.Equal(t, 1, m.dropped[DropExited])
}

func TestSchedulerDefaultFaultHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	log := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))
	sched := newTestScheduler(t, WithPoolSize(1), WithLogger(log))

	a := NewActor[string](sched, ReceiverFunc[string](func(context.Context, string) error {
		panic("kaboom")
	}), WithName("noisy"))
	a.Post("x")
	waitIdle(t, a)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Contains(buf.Bytes(), []byte("actor handler panicked"))
	}, waitFor, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	assert.Contains(t, out, "actor=noisy")
	assert.Contains(t, out, "kaboom")
	assert.Contains(t, out, "stack=")
}

func TestSchedulerSurvivesPanickingFaultHandler(t *testing.T) {
	sched := newTestScheduler(t, WithPoolSize(1), WithFaultHandler(func(Fault) {
		panic("handler of handlers")
	}))

	rec := &recorder[int]{}
	a := NewActor[int](sched, ReceiverFunc[int](func(ctx context.Context, msg int) error {
		if msg == 0 {
			return errors.New("zero")
		}
		return rec.Receive(ctx, msg)
	}))
	a.Post(0)
	a.Post(1)
	waitIdle(t, a)

	assert.Equal(t, []int{1}, rec.Received())
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
