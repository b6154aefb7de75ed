package trace

import (
	"context"
	"errors"
	"log/slog"
)

// Sink is the destination of delivered records.
type Sink interface {
	Write(ctx context.Context, r *Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r *Record) error

// Write calls f(ctx, r).
func (f SinkFunc) Write(ctx context.Context, r *Record) error {
	return f(ctx, r)
}

// SlogSink writes records to a slog.Handler.
type SlogSink struct {
	handler slog.Handler
}

// NewSlogSink creates a sink on top of h. A nil handler uses the handler of
// slog.Default().
func NewSlogSink(h slog.Handler) *SlogSink {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &SlogSink{handler: h}
}

// Write converts r to a slog.Record and hands it to the handler.
func (s *SlogSink) Write(ctx context.Context, r *Record) error {
	if r == nil {
		return ErrNilRecord
	}
	level := r.Level.SlogLevel()
	if !s.handler.Enabled(ctx, level) {
		return nil
	}

	rec := slog.NewRecord(r.Time, level, r.Message, 0)
	rec.AddAttrs(
		slog.String("logger", r.Logger),
		slog.String("record_id", r.ID),
		slog.String("trace_level", r.Level.String()),
	)
	if r.Err != nil {
		rec.AddAttrs(slog.Any("error", r.Err))
	}
	rec.AddAttrs(r.Attrs()...)

	return s.handler.Handle(ctx, rec)
}

// MultiSink writes every record to all of its sinks.
type MultiSink []Sink

// NewMultiSink combines sinks, skipping nil entries.
func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Write writes r to every sink and joins their errors.
func (m MultiSink) Write(ctx context.Context, r *Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
