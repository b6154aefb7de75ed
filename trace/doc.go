// Package trace is the logging consumer of the core actor primitive.
//
// A Tracer builds structured records on the calling goroutine and posts
// them to a Service, a single actor that forwards each record to a Sink.
// Callers never wait on the sink and never see its errors; those go to a
// Diagnostics channel instead.
package trace
