package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSummarize(t *testing.T) {
	ctx := context.Background()
	local := NewLocal()
	t.Cleanup(func() { _ = local.Shutdown(ctx) })

	rec, spans, err := local.Instruments()
	require.NoError(t, err)

	drainCtx, drain := spans.StartDrainSpan(ctx, "main", "run-1")
	_, h := spans.StartHandlerSpan(drainCtx, "echo", "tick", 1)
	rec.RecordHandlerCall(drainCtx, "echo", time.Millisecond, nil)
	spans.EndSpanWithError(h, nil)
	_, h = spans.StartHandlerSpan(drainCtx, "validator", "tick", 1)
	rec.RecordHandlerCall(drainCtx, "validator", time.Millisecond, errors.New("bad"))
	spans.EndSpanWithError(h, errors.New("bad"))
	rec.RecordDrain(drainCtx, 1, 2*time.Millisecond)
	spans.EndSpanWithError(drain, nil)

	sum, err := local.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2.0, sum.Counters["goon.handler.calls"])
	assert.Equal(t, 1.0, sum.Counters["goon.handler.errors"])
	assert.Equal(t, 2.0, sum.Counters["goon.handler.latency_ms.count"])
	assert.Equal(t, 1.0, sum.Counters["goon.drain.events"])
	assert.Equal(t, 1, sum.Spans["goon.drain"])
	assert.Equal(t, []string{"goon.drain", "goon.handler.echo", "goon.handler.validator"}, sum.SpanNames())
}
