package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestSpanManager(t *testing.T) (SpanManager, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return NewSpanManager(tp), exporter
}

func TestHandlerSpanIsChildOfDrain(t *testing.T) {
	sm, exporter := newTestSpanManager(t)

	ctx, drain := sm.StartDrainSpan(context.Background(), "main", "run-1")
	_, h := sm.StartHandlerSpan(ctx, "echo", "user.login", 3)
	sm.EndSpanWithError(h, nil)
	sm.EndSpanWithError(drain, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	child, parent := spans[0], spans[1]
	assert.Equal(t, "goon.handler.echo", child.Name)
	assert.Equal(t, "goon.drain", parent.Name)
	assert.Equal(t, parent.SpanContext.SpanID(), child.Parent.SpanID())
	assert.Equal(t, codes.Ok, child.Status.Code)

	var eventName string
	for _, attr := range child.Attributes {
		if attr.Key == "event.name" {
			eventName = attr.Value.AsString()
		}
	}
	assert.Equal(t, "user.login", eventName)
}

func TestEndSpanWithErrorRecordsStatus(t *testing.T) {
	sm, exporter := newTestSpanManager(t)

	_, span := sm.StartHandlerSpan(context.Background(), "validator", "e", 1)
	sm.EndSpanWithError(span, errors.New("bad payload"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "bad payload", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartDrainSpan(ctx, "main", "run")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())
	assert.False(t, trace.SpanFromContext(got).SpanContext().IsValid())
	sm.EndSpanWithError(span, errors.New("ignored"))
}
