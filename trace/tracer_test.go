package trace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger records what a Tracer posts.
type captureLogger struct {
	mu      sync.Mutex
	records []*Record
}

func (c *captureLogger) Log(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureLogger) Records() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Record(nil), c.records...)
}

func TestTracerMinLevel(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out, WithMinLevel(LevelWarn), WithLoggerName("unit"))
	assert.Equal(t, LevelWarn, tr.MinLevel())

	tr.Debug("hidden")
	tr.Info("hidden")
	tr.Warn("shown")
	tr.Error("shown", 1)
	tr.Trace(LevelOff, "never")

	records := out.Records()
	require.Len(t, records, 2)
	assert.Equal(t, LevelWarn, records[0].Level)
	assert.Equal(t, "unit", records[0].Logger)

	tr.SetMinLevel(LevelOff)
	tr.Error("silenced", 2)
	assert.Len(t, out.Records(), 2)

	tr.SetMinLevel(LevelTrace)
	assert.True(t, tr.Enabled(LevelTrace))
	assert.False(t, tr.Enabled(LevelOff))
}

func TestTracerFormatsParams(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out)

	tr.Info("values", 1, "two", nil)
	tr.Debug("plain")
	tr.EnterFunc("Load", "cfg.yaml")
	tr.ExitFunc("Load")

	records := out.Records()
	require.Len(t, records, 4)
	assert.Equal(t, "values: 1, two, nil", records[0].Message)
	assert.Equal(t, "plain", records[1].Message)
	assert.Equal(t, "enter Load: cfg.yaml", records[2].Message)
	assert.Equal(t, LevelTrace, records[2].Level)
	assert.Equal(t, "exit Load", records[3].Message)
}

func TestTracerEmptyFunctionName(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out)

	tr.EnterFunc("")
	tr.ExitFunc("")

	records := out.Records()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, LevelError, r.Level)
	}
}

func TestTracerRecordProperties(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out)

	tr.Error("failed to connect", 42)

	records := out.Records()
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, 42, r.Properties[PropertyErrorNumber])
	assert.NotEmpty(t, r.Properties[PropertyLogTime])
	assert.NotEmpty(t, r.Properties[PropertyMachineName])
	assert.NotZero(t, r.Properties[PropertyProcessID])
	assert.NotEmpty(t, r.Properties[PropertyProcessName])
	assert.Equal(t, "github.com/najoast/sntrace/trace", r.Properties[PropertyCallingPackage])
	assert.Contains(t, r.Properties[PropertyFileName], "tracer_test.go")
	assert.Contains(t, r.Properties[PropertyFunctionName], "TestTracerRecordProperties")
	assert.NotZero(t, r.Properties[PropertyLineNumber])
	assert.Contains(t, r.Properties[PropertyStackTrace], "tracer_test.go")
}

func TestTracerInfoHasNoFrame(t *testing.T) {
	out := &captureLogger{}
	NewTracer(out).Info("quiet")

	r := out.Records()[0]
	_, ok := r.Property(PropertyFileName)
	assert.False(t, ok)
}

func TestTracerException(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out)

	root := errors.New("connection refused")
	tr.Exception(errors.Wrap(root, "dial"), "sync failed")

	records := out.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "sync failed", records[0].Message)

	r := records[1]
	assert.Equal(t, LevelError, r.Level)
	assert.Equal(t, "dial: connection refused", r.Message)
	assert.Equal(t, "connection refused", r.Properties[PropertyInnerException])
	assert.Equal(t, "*errors.fundamental", r.Properties[PropertyExceptionName])
	assert.Contains(t, r.Properties[PropertyExceptionString], "tracer_test.go")
	assert.ErrorIs(t, r.Err, root)
}

func TestTracerExceptionWithStdlibWrapping(t *testing.T) {
	out := &captureLogger{}
	tr := NewTracer(out)

	inner := fmt.Errorf("inner")
	tr.Exception(fmt.Errorf("outer: %w", inner), "")

	records := out.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "inner", records[0].Properties[PropertyInnerException])

	tr.Exception(nil, "")
	assert.Len(t, out.Records(), 2)
}

func TestTracerReportsConstructionFailures(t *testing.T) {
	diag := &memoryDiagnostics{}
	tr := NewTracer(nil, WithTracerDiagnostics(diag))

	tr.Info("nowhere to go")
	assert.Equal(t, 1, diag.Count())

	panicking := NewTracer(loggerFunc(func(*Record) { panic("boom") }), WithTracerDiagnostics(diag))
	assert.NotPanics(t, func() { panicking.Warn("explodes") })
	assert.Equal(t, 2, diag.Count())
}

type loggerFunc func(*Record)

func (f loggerFunc) Log(r *Record) { f(r) }
