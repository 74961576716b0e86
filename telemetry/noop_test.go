package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/stretchr/testify/assert"
)

func TestNoopLoggerNeverPanics(t *testing.T) {
	t.Parallel()

	var l Logger = NewNoopLogger()
	ctx := context.Background()
	assert.NotPanics(t, func() {
		l.Debug(ctx, "debug", "k", "v")
		l.Info(ctx, "info")
		l.Warn(ctx, "warn", "n", 1)
		l.Error(ctx, "error", errors.New("boom"))
	})
}

func TestNoopMetricsNeverPanics(t *testing.T) {
	t.Parallel()

	var m Metrics = NewNoopMetrics()
	assert.NotPanics(t, func() {
		m.IncCounter("calls", 1, "tool", "search")
		m.RecordTimer("latency", 5*time.Millisecond)
		m.RecordGauge("queue_depth", 3)
	})
}

func TestNoopTracerReturnsUsableSpan(t *testing.T) {
	t.Parallel()

	tracer := NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "op")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("tick")
		span.SetStatus(codes.Error, "failed")
		span.RecordError(errors.New("boom"))
		span.End()
	})
	assert.NotNil(t, tracer.Span(ctx))
}
