package trace

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

	"github.com/najoast/sntrace/core"
)

const waitFor = 5 * time.Second

// memorySink keeps written records.
type memorySink struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (s *memorySink) Write(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// memoryDiagnostics keeps reported failures.
type memoryDiagnostics struct {
	mu        sync.Mutex
	locations []string
	errs      []error
}

func (d *memoryDiagnostics) Report(location string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locations = append(d.locations, location)
	d.errs = append(d.errs, err)
}

func (d *memoryDiagnostics) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

func newScheduler(t *testing.T) *core.Scheduler {
	t.Helper()
	s := core.NewScheduler(core.WithPoolSize(2))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestServiceForwardsInOrder(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(newScheduler(t), sink)
	assert.Equal(t, ServiceName, svc.ID())

	for _, msg := range []string{"A", "B", "C"} {
		svc.Log(NewRecord(LevelInfo, "test", msg))
	}
	svc.Log(nil)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, svc.WaitIdle(ctx))

	var got []string
	for _, r := range sink.Records() {
		got = append(got, r.Message)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestServiceReportsSinkErrors(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	diag := &memoryDiagnostics{}
	svc := NewService(newScheduler(t), sink, WithDiagnostics(diag))

	svc.Log(NewRecord(LevelError, "test", "lost"))
	svc.Log(NewRecord(LevelError, "test", "lost too"))

	require.Eventually(t, func() bool { return diag.Count() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, uint64(0), svc.Stats().Faults)

	diag.mu.Lock()
	defer diag.mu.Unlock()
	assert.Equal(t, "trace.Service.Receive", diag.locations[0])
	assert.Contains(t, diag.errs[0].Error(), "disk full")
}

func TestServiceReportsSinkPanics(t *testing.T) {
	diag := &memoryDiagnostics{}
	sink := SinkFunc(func(context.Context, *Record) error { panic("sink broke") })
	svc := NewService(newScheduler(t), sink, WithDiagnostics(diag))

	svc.Log(NewRecord(LevelInfo, "test", "x"))

	require.Eventually(t, func() bool { return diag.Count() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, uint64(0), svc.Stats().Faults)
}

func TestServiceShutdownDrainsThenRefuses(t *testing.T) {
	release := make(chan struct{})
	sink := &memorySink{}
	slow := SinkFunc(func(ctx context.Context, r *Record) error {
		<-release
		return sink.Write(ctx, r)
	})
	svc := NewService(newScheduler(t), slow)

	for i := 0; i < 5; i++ {
		svc.Log(NewRecord(LevelInfo, "test", "queued"))
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		done <- svc.Shutdown(ctx)
	}()

	require.Eventually(t, svc.Closing, waitFor, time.Millisecond)
	svc.Log(NewRecord(LevelInfo, "test", "late"))
	close(release)

	require.NoError(t, <-done)
	assert.Len(t, sink.Records(), 5)
	assert.True(t, svc.Exited())

	svc.Resume()
	svc.Log(NewRecord(LevelInfo, "test", "resumed"))
	require.Eventually(t, func() bool { return len(sink.Records()) == 6 }, waitFor, time.Millisecond)
}

func TestServiceShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := NewService(newScheduler(t), SinkFunc(func(context.Context, *Record) error {
		<-release
		return nil
	}))
	svc.Log(NewRecord(LevelInfo, "test", "stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, svc.Exited())
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewRecord(LevelWarn, "unit", "careful")
	r.Set(PropertyErrorNumber, 7)
	r.Err = errors.New("root cause")
	require.NoError(t, sink.Write(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, `"msg":"careful"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"logger":"unit"`)
	assert.Contains(t, out, `"ErrorNumber":7`)
	assert.Contains(t, out, `"error":"root cause"`)

	buf.Reset()
	require.NoError(t, sink.Write(context.Background(), NewRecord(LevelTrace, "unit", "hidden")))
	assert.Empty(t, buf.String())

	assert.ErrorIs(t, sink.Write(context.Background(), nil), ErrNilRecord)
}

func TestMultiSink(t *testing.T) {
	a, b := &memorySink{}, &memorySink{err: errors.New("b failed")}
	multi := NewMultiSink(a, nil, b)
	require.Len(t, multi, 2)

	err := multi.Write(context.Background(), NewRecord(LevelInfo, "unit", "fan out"))
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.Records(), 1)
}

func TestRecordAttrsSorted(t *testing.T) {
	r := NewRecord(LevelInfo, "unit", "m")
	r.Set("b", 2).Set("a", 1)

	attrs := r.Attrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "b", attrs[1].Key)

	v, ok := r.Property("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.NotEmpty(t, r.ID)
}
