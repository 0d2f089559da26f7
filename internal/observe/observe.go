// Package observe wires structured logging and tracing.
package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("emotion-memory")

// Observer handles logging and tracing.
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer with console output.
// If verbose is false, only warnings and errors are shown.
func New(out io.Writer, verbose bool) *Observer {
	return newObserver(bolt.New(bolt.NewConsoleHandler(out)), verbose)
}

// NewJSON creates an Observer with JSON output.
// If verbose is false, only warnings and errors are shown.
func NewJSON(out io.Writer, verbose bool) *Observer {
	return newObserver(bolt.New(bolt.NewJSONHandler(out)), verbose)
}

// ForFormat picks the console or JSON handler by name.
func ForFormat(out io.Writer, format string, verbose bool) *Observer {
	if format == "json" {
		return NewJSON(out, verbose)
	}
	return New(out, verbose)
}

// Nop returns an Observer that discards all log output.
func Nop() *Observer {
	return NewJSON(io.Discard, false)
}

func newObserver(l *bolt.Logger, verbose bool) *Observer {
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the underlying logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span with optional string attributes given as
// key/value pairs.
func (o *Observer) StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
