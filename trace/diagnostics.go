package trace

import (
	"log/slog"
	"os"
)

// Diagnostics is the out-of-band channel for failures of the tracing path
// itself. Implementations must not log through the Tracer they observe.
type Diagnostics interface {
	Report(location string, err error)
}

// DiagnosticsFunc adapts a function to the Diagnostics interface.
type DiagnosticsFunc func(location string, err error)

// Report calls f(location, err).
func (f DiagnosticsFunc) Report(location string, err error) {
	f(location, err)
}

// StderrDiagnostics reports failures as text on standard error.
type StderrDiagnostics struct {
	log *slog.Logger
}

// NewStderrDiagnostics creates the default Diagnostics.
func NewStderrDiagnostics() *StderrDiagnostics {
	return NewLoggerDiagnostics(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// NewLoggerDiagnostics reports through log.
func NewLoggerDiagnostics(log *slog.Logger) *StderrDiagnostics {
	return &StderrDiagnostics{log: log.With("component", "trace")}
}

// Report logs the failure.
func (d *StderrDiagnostics) Report(location string, err error) {
	d.log.Error("tracing failure", "location", location, "error", err)
}
