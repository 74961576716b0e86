// Package telemetry defines the logging, metrics, and tracing interfaces
// shared by every component of the execution core. Components depend on
// these small interfaces rather than a concrete backend so the core can run
// with a no-op implementation in tests and a Clue/OpenTelemetry-backed
// implementation in production.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured log messages. keyvals are alternating key/value
// pairs, e.g. Info(ctx, "step completed", "plan_id", id, "step", n).
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges. tags are alternating
// key/value pairs used as metric dimensions.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer starts spans and exposes the current span from a context.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span is the subset of an OpenTelemetry span the core needs.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
