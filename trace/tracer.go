package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithMinLevel sets the initial minimum level.
func WithMinLevel(l Level) TracerOption {
	return func(t *Tracer) {
		t.minLevel.Store(int32(l))
	}
}

// WithLoggerName sets Record.Logger. It defaults to the process name.
func WithLoggerName(name string) TracerOption {
	return func(t *Tracer) {
		if name != "" {
			t.name = name
		}
	}
}

// WithTracerDiagnostics sets the channel for record construction failures.
func WithTracerDiagnostics(d Diagnostics) TracerOption {
	return func(t *Tracer) {
		if d != nil {
			t.diag = d
		}
	}
}

// WithCallerSkip skips extra stack frames when resolving the caller, for
// wrappers around the Tracer.
func WithCallerSkip(skip int) TracerOption {
	return func(t *Tracer) {
		t.callerSkip = skip
	}
}

// Tracer builds records and posts them to a Logger, usually a Service.
// All methods are safe for concurrent use and never return errors.
type Tracer struct {
	out        Logger
	diag       Diagnostics
	name       string
	callerSkip int
	minLevel   atomic.Int32

	// process identity, resolved once
	machineName string
	processName string
	processID   int
}

// NewTracer creates a Tracer posting to out.
func NewTracer(out Logger, opts ...TracerOption) *Tracer {
	processName := filepath.Base(os.Args[0])
	machineName, err := os.Hostname()
	if err != nil {
		machineName = "unknown"
	}

	t := &Tracer{
		out:         out,
		diag:        NewStderrDiagnostics(),
		name:        processName,
		machineName: machineName,
		processName: processName,
		processID:   os.Getpid(),
	}
	t.minLevel.Store(int32(LevelTrace))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetMinLevel changes the minimum level at runtime.
func (t *Tracer) SetMinLevel(l Level) {
	t.minLevel.Store(int32(l))
}

// MinLevel returns the minimum level.
func (t *Tracer) MinLevel() Level {
	return Level(t.minLevel.Load())
}

// Enabled reports whether a record at level l would be posted.
func (t *Tracer) Enabled(l Level) bool {
	return l.Valid() && l < LevelOff && l >= t.MinLevel()
}

// Trace posts msg at the given level.
func (t *Tracer) Trace(level Level, msg string) {
	t.log("Tracer.Trace", level, msg, 0, nil)
}

// Debug posts msg followed by params at LevelDebug.
func (t *Tracer) Debug(msg string, params ...any) {
	t.log("Tracer.Debug", LevelDebug, msg+formatParams(params), 0, nil)
}

// Info posts msg followed by params at LevelInfo.
func (t *Tracer) Info(msg string, params ...any) {
	t.log("Tracer.Info", LevelInfo, msg+formatParams(params), 0, nil)
}

// Warn posts msg followed by params at LevelWarn.
func (t *Tracer) Warn(msg string, params ...any) {
	t.log("Tracer.Warn", LevelWarn, msg+formatParams(params), 0, nil)
}

// Error posts msg at LevelError with an application error number.
func (t *Tracer) Error(msg string, errorNumber int) {
	t.log("Tracer.Error", LevelError, msg, errorNumber, nil)
}

// Exception posts err at LevelError, preceded by msg when it is not empty.
func (t *Tracer) Exception(err error, msg string) {
	if msg != "" {
		t.log("Tracer.Exception", LevelError, msg, 0, nil)
	}
	if err == nil {
		t.log("Tracer.Exception", LevelError, "Exception called with a nil error", 0, nil)
		return
	}
	t.log("Tracer.Exception", LevelError, "", 0, err)
}

// EnterFunc traces entry into the named function at LevelTrace.
func (t *Tracer) EnterFunc(name string, params ...any) {
	if name == "" {
		t.log("Tracer.EnterFunc", LevelError, "EnterFunc called with an empty function name", 0, nil)
		return
	}
	t.log("Tracer.EnterFunc", LevelTrace, "enter "+name+formatParams(params), 0, nil)
}

// ExitFunc traces exit from the named function at LevelTrace.
func (t *Tracer) ExitFunc(name string, params ...any) {
	if name == "" {
		t.log("Tracer.ExitFunc", LevelError, "ExitFunc called with an empty function name", 0, nil)
		return
	}
	t.log("Tracer.ExitFunc", LevelTrace, "exit "+name+formatParams(params), 0, nil)
}

// log must be called directly by the exported method so that the caller
// frame is at a fixed depth.
func (t *Tracer) log(location string, level Level, msg string, errorNumber int, err error) {
	if !t.Enabled(level) {
		return
	}

	pc, file, line, ok := runtime.Caller(2 + t.callerSkip)

	defer func() {
		if r := recover(); r != nil {
			t.diag.Report(location, errors.Errorf("failed to build record: %v", r))
		}
	}()

	r := NewRecord(level, t.name, msg)
	r.Set(PropertyLogTime, r.Time.Format(LogTimeLayout))
	r.Set(PropertyErrorNumber, errorNumber)
	r.Set(PropertyMachineName, t.machineName)
	r.Set(PropertyProcessID, t.processID)
	r.Set(PropertyProcessName, t.processName)

	var fn string
	if ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
			r.Set(PropertyCallingPackage, packageName(fn))
		}
	}

	if err != nil {
		setException(r, err)
	}

	if ok && (level == LevelWarn || level >= LevelError) {
		r.Set(PropertyFileName, file)
		r.Set(PropertyLineNumber, line)
		if fn != "" {
			r.Set(PropertyFunctionName, fn)
			r.Set(PropertyRaisedErrorNamespace, packageName(fn))
		}
		r.Set(PropertyStackTrace, fmt.Sprintf("%s at %s:%d", fn, file, line))
	}

	if t.out == nil {
		t.diag.Report(location, errors.New("tracer has no output"))
		return
	}
	t.out.Log(r)
}

// setException fills the exception properties from err.
func setException(r *Record, err error) {
	r.Err = err
	r.Message = err.Error()
	r.Set(PropertyExceptionString, fmt.Sprintf("%+v", err))

	cause := errors.Cause(err)
	r.Set(PropertyExceptionName, fmt.Sprintf("%T", cause))
	if cause != err {
		r.Set(PropertyInnerException, cause.Error())
	} else if inner := errors.Unwrap(err); inner != nil {
		r.Set(PropertyInnerException, inner.Error())
	}
}

// formatParams renders params as ": a, b" or "" when there are none.
func formatParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(": ")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p == nil {
			b.WriteString("nil")
			continue
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// packageName extracts the import path from a qualified function name such
// as "github.com/x/y.(*T).Method".
func packageName(fn string) string {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return fn
	}
	return fn[:slash+1+dot]
}
