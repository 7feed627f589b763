package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Local keeps metrics and spans in memory for a one-shot CLI run, so they can
// be summarized after the engine stops.
type Local struct {
	reader *sdkmetric.ManualReader
	spans  *tracetest.InMemoryExporter

	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

func NewLocal() *Local {
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewInMemoryExporter()
	return &Local{
		reader:         reader,
		spans:          spans,
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans)),
	}
}

// Instruments builds a Recorder and SpanManager on the local providers.
func (l *Local) Instruments() (Recorder, SpanManager, error) {
	rec, err := NewRecorder(l.MeterProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry recorder: %w", err)
	}
	return rec, NewSpanManager(l.TracerProvider), nil
}

// Summary is a flat view of what was recorded.
type Summary struct {
	// Counters maps counter name (and histogram name + ".count") to its total
	// across all attribute sets.
	Counters map[string]float64 `json:"counters"`
	// Spans maps span name to how many ended.
	Spans map[string]int `json:"spans"`
}

// SpanNames returns the span names in sorted order.
func (s Summary) SpanNames() []string {
	names := make([]string, 0, len(s.Spans))
	for n := range s.Spans {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summarize collects the current metrics and ended spans.
func (l *Local) Summarize(ctx context.Context) (Summary, error) {
	var rm metricdata.ResourceMetrics
	if err := l.reader.Collect(ctx, &rm); err != nil {
		return Summary{}, fmt.Errorf("collect metrics: %w", err)
	}

	sum := Summary{Counters: make(map[string]float64), Spans: make(map[string]int)}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sum.Counters[m.Name] += float64(dp.Value)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					sum.Counters[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sum.Counters[m.Name+".count"] += float64(dp.Count)
				}
			}
		}
	}
	for _, s := range l.spans.GetSpans() {
		sum.Spans[s.Name]++
	}
	return sum, nil
}

// Shutdown flushes and stops both providers.
func (l *Local) Shutdown(ctx context.Context) error {
	return errors.Join(
		l.TracerProvider.Shutdown(ctx),
		l.MeterProvider.Shutdown(ctx),
	)
}
