package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/engine"
)

func fixedSource() engine.Snapshot {
	return engine.Snapshot{
		Name:      "main",
		State:     "running",
		Emitted:   7,
		Processed: 5,
		Rejected:  2,
		QueueLen:  2,
		QueueCap:  4,
		Uptime:    3 * time.Second,
		Handlers: []engine.HandlerSnapshot{
			{ID: 1, Name: "echo", Enabled: true, Stats: engine.Stats{Calls: 5, AvgExecMillis: 0.5}},
			{ID: 2, Name: "echo", Enabled: false, Stats: engine.Stats{Calls: 0}},
		},
	}
}

func TestCollectorExportsSnapshot(t *testing.T) {
	c := NewCollector("", fixedSource)
	reg, err := NewRegistry(c)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	emitted := byName["goon_events_emitted_total"]
	require.NotNil(t, emitted)
	assert.Equal(t, dto.MetricType_COUNTER, emitted.GetType())
	assert.Equal(t, 7.0, emitted.GetMetric()[0].GetCounter().GetValue())

	calls := byName["goon_handler_calls_total"]
	require.NotNil(t, calls)
	assert.Len(t, calls.GetMetric(), 2, "same-named handlers are told apart by handler_id")

	assert.Equal(t, 3.0, byName["goon_uptime_seconds"].GetMetric()[0].GetGauge().GetValue())
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector("", fixedSource))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestWriteText(t *testing.T) {
	reg, err := NewRegistry(NewCollector("goon", fixedSource))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()

	assert.Contains(t, out, "# TYPE goon_events_processed_total counter")
	assert.Contains(t, out, `goon_events_processed_total{context="main"} 5`)
	assert.Contains(t, out, `goon_state{context="main",state="running"} 1`)
	assert.True(t, strings.Contains(out, `goon_handler_enabled{context="main",handler="echo",handler_id="2"} 0`))
}
