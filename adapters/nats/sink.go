package nats

import (
	"context"
	"encoding/json"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/najoast/sntrace/trace"
)

const (
	// DefaultSubjectPrefix is used when no prefix is configured
	DefaultSubjectPrefix = "sntrace"

	// HeaderLevel carries the record level on every published message
	HeaderLevel = "Sntrace-Level"

	// HeaderRecordID carries the record ID on every published message
	HeaderRecordID = "Sntrace-Record-Id"
)

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("nats sink closed")

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSubjectPrefix sets the subject prefix. Records are published to
// <prefix>.<level>.
func WithSubjectPrefix(prefix string) SinkOption {
	return func(s *Sink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithFlushTimeout bounds the flush performed by Close.
func WithFlushTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// Sink is a trace.Sink publishing each record as a JSON document.
type Sink struct {
	nc           *natsgo.Conn
	release      closeFunc
	prefix       string
	flushTimeout time.Duration
}

// NewSink connects and returns a Sink.
func NewSink(connect Connector, opts ...SinkOption) (*Sink, error) {
	nc, release, err := connect()
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats")
	}

	s := &Sink{
		nc:           nc,
		release:      release,
		prefix:       DefaultSubjectPrefix,
		flushTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subject returns the subject records of the given level are published to.
func (s *Sink) Subject(level trace.Level) string {
	return s.prefix + "." + level.String()
}

// Write publishes r. Publishing is asynchronous; ctx is not consulted.
func (s *Sink) Write(_ context.Context, r *trace.Record) error {
	if r == nil {
		return trace.ErrNilRecord
	}
	if s.nc.IsClosed() {
		return ErrSinkClosed
	}

	data, err := encodeRecord(r)
	if err != nil {
		return err
	}

	msg := natsgo.NewMsg(s.Subject(r.Level))
	msg.Header.Set(HeaderLevel, r.Level.String())
	msg.Header.Set(HeaderRecordID, r.ID)
	msg.Data = data

	if err := s.nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "publish %s", msg.Subject)
	}
	return nil
}

// Close flushes pending publishes and releases the connection.
func (s *Sink) Close() error {
	if s.nc.IsClosed() {
		return nil
	}
	err := s.nc.FlushTimeout(s.flushTimeout)
	s.release()
	if err != nil {
		return errors.Wrap(err, "flush nats connection")
	}
	return nil
}

var _ trace.Sink = (*Sink)(nil)

// envelope adds the record error, which Record does not marshal itself.
type envelope struct {
	*trace.Record
	Error string `json:"error,omitempty"`
}

func encodeRecord(r *trace.Record) ([]byte, error) {
	e := envelope{Record: r}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "encode record %s", r.ID)
	}
	return data, nil
}

// DecodeRecord parses a published record. The error, if any, is restored
// as an opaque error carrying the original message.
func DecodeRecord(data []byte) (*trace.Record, error) {
	e := envelope{Record: &trace.Record{}}
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	if e.Error != "" {
		e.Record.Err = errors.New(e.Error)
	}
	return e.Record, nil
}
