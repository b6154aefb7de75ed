package trace

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Property keys attached to every Record built by a Tracer.
const (
	PropertyLogTime              = "LogTime"
	PropertyCallingPackage       = "CallingPackage"
	PropertyErrorNumber          = "ErrorNumber"
	PropertyExceptionName        = "ExceptionName"
	PropertyExceptionString      = "ExceptionString"
	PropertyInnerException       = "InnerException"
	PropertyMachineName          = "MachineName"
	PropertyProcessID            = "ProcessId"
	PropertyProcessName          = "ProcessName"
	PropertyFileName             = "FileName"
	PropertyLineNumber           = "LineNumber"
	PropertyFunctionName         = "FunctionName"
	PropertyRaisedErrorNamespace = "RaisedErrorNamespace"
	PropertyStackTrace           = "StackTrace"
)

// LogTimeLayout formats PropertyLogTime.
const LogTimeLayout = "2006-01-02,15:04:05.0000000"

// Record is one structured trace event.
type Record struct {
	// ID uniquely identifies the record
	ID string `json:"id"`

	// Time the record was created
	Time time.Time `json:"time"`

	// Level of the record
	Level Level `json:"level"`

	// Logger names the emitting component
	Logger string `json:"logger"`

	// Message text
	Message string `json:"message,omitempty"`

	// Properties holds the extra fields, keyed by the Property constants
	Properties map[string]any `json:"properties,omitempty"`

	// Err is the traced error, if any
	Err error `json:"-"`
}

// NewRecord creates a Record stamped with a fresh ID and the current time.
func NewRecord(level Level, logger, message string) *Record {
	return &Record{
		ID:         uuid.NewString(),
		Time:       time.Now(),
		Level:      level,
		Logger:     logger,
		Message:    message,
		Properties: make(map[string]any),
	}
}

// Set stores a property and returns r for chaining.
func (r *Record) Set(key string, value any) *Record {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = value
	return r
}

// Property returns a property value.
func (r *Record) Property(key string) (any, bool) {
	v, ok := r.Properties[key]
	return v, ok
}

// Attrs returns the properties as slog attributes sorted by key.
func (r *Record) Attrs() []slog.Attr {
	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, r.Properties[k]))
	}
	return attrs
}
