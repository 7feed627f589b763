package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle for drains and handler calls.
type SpanManager interface {
	// StartDrainSpan starts a span covering one ProcessEvents pass.
	StartDrainSpan(ctx context.Context, contextName, runID string) (context.Context, trace.Span)

	// StartHandlerSpan starts a child span for one handler invocation.
	StartHandlerSpan(ctx context.Context, handler, eventName string, eventID uint32) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager on tp. A nil tp means the global
// provider.
func NewSpanManager(tp trace.TracerProvider) SpanManager {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: tp.Tracer(scope)}
}

func (m *otelSpanManager) StartDrainSpan(ctx context.Context, contextName, runID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "goon.drain",
		trace.WithAttributes(
			attribute.String("context.name", contextName),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, handler, eventName string, eventID uint32) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "goon.handler."+handler,
		trace.WithAttributes(
			attribute.String("handler.name", handler),
			attribute.String("event.name", eventName),
			attribute.Int64("event.id", int64(eventID)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
