// Package telemetry records OpenTelemetry metrics and spans for the dispatch
// engine. Use the Noop variants when telemetry is disabled.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/mattjoyce/goon"

// Recorder records engine metrics.
type Recorder interface {
	// RecordHandlerCall records one handler invocation with its duration and
	// error status.
	RecordHandlerCall(ctx context.Context, handler string, duration time.Duration, err error)

	// RecordDrain records one ProcessEvents pass.
	RecordDrain(ctx context.Context, processed int, duration time.Duration)

	// RecordEmit records an emit attempt; accepted is false on overflow.
	RecordEmit(ctx context.Context, accepted bool)
}

type otelRecorder struct {
	handlerCalls   metric.Int64Counter
	handlerErrors  metric.Int64Counter
	handlerLatency metric.Float64Histogram
	drains         metric.Int64Counter
	drained        metric.Int64Counter
	drainLatency   metric.Float64Histogram
	emits          metric.Int64Counter
}

// NewRecorder builds a Recorder on mp. A nil mp means the global provider.
func NewRecorder(mp metric.MeterProvider) (Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scope)

	handlerCalls, err := meter.Int64Counter("goon.handler.calls",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("goon.handler.errors",
		metric.WithDescription("Number of failed handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("goon.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	drains, err := meter.Int64Counter("goon.drain.runs",
		metric.WithDescription("Number of queue drains"),
	)
	if err != nil {
		return nil, err
	}

	drained, err := meter.Int64Counter("goon.drain.events",
		metric.WithDescription("Number of events dispatched by drains"),
	)
	if err != nil {
		return nil, err
	}

	drainLatency, err := meter.Float64Histogram("goon.drain.latency_ms",
		metric.WithDescription("Drain latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	emits, err := meter.Int64Counter("goon.queue.emits",
		metric.WithDescription("Number of emit attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		handlerCalls:   handlerCalls,
		handlerErrors:  handlerErrors,
		handlerLatency: handlerLatency,
		drains:         drains,
		drained:        drained,
		drainLatency:   drainLatency,
		emits:          emits,
	}, nil
}

func (r *otelRecorder) RecordHandlerCall(ctx context.Context, handler string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("handler", handler))

	r.handlerCalls.Add(ctx, 1, attrs)
	r.handlerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		r.handlerErrors.Add(ctx, 1, attrs)
	}
}

func (r *otelRecorder) RecordDrain(ctx context.Context, processed int, duration time.Duration) {
	r.drains.Add(ctx, 1)
	r.drained.Add(ctx, int64(processed))
	r.drainLatency.Record(ctx, float64(duration.Microseconds())/1000)
}

func (r *otelRecorder) RecordEmit(ctx context.Context, accepted bool) {
	r.emits.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}
