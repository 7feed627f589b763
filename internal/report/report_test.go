package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/history"
)

func snapshot() engine.Snapshot {
	return engine.Snapshot{
		ID:        1,
		Name:      "main",
		RunID:     "run-1",
		State:     "terminated",
		Order:     "newest_first",
		Processed: 5,
		Emitted:   6,
		Rejected:  1,
		QueueCap:  1024,
		Uptime:    1500 * time.Millisecond,
		Handlers: []engine.HandlerSnapshot{
			{ID: 2, Name: "validator", Enabled: true, Stats: engine.Stats{Calls: 5, Errors: 2, AvgExecMillis: 0.25}},
			{ID: 1, Name: "echo", Enabled: false},
		},
	}
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Stats(&buf, snapshot(), NewDefaultTheme()))

	out := buf.String()
	for _, want := range []string{
		"Goon Context Statistics",
		"main (ID: 1)",
		"terminated",
		"0/1024 (rejected 1)",
		"1.500s",
		"validator",
		"0.250",
		"echo",
		"no",
	} {
		assert.Contains(t, out, want)
	}
}

func TestStatsWithoutHandlers(t *testing.T) {
	snap := snapshot()
	snap.Handlers = nil

	var buf bytes.Buffer
	require.NoError(t, Stats(&buf, snap, NewDefaultTheme()))
	assert.Contains(t, buf.String(), "no handlers registered")
}

func TestHistory(t *testing.T) {
	runs := []history.Run{
		{ID: "r2", ContextName: "main", FinalState: "terminated", Processed: 9, Duration: time.Second},
		{ID: "r1", ContextName: "aux", FinalState: "error", HandlerErrors: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, History(&buf, runs, NewDefaultTheme()))
	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "r2")
	assert.Contains(t, out, "aux")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("r2")), bytes.Index(buf.Bytes(), []byte("r1")))

	buf.Reset()
	require.NoError(t, History(&buf, nil, NewDefaultTheme()))
	assert.Contains(t, buf.String(), "no runs recorded")
}

func TestRun(t *testing.T) {
	r := history.FromSnapshot(snapshot(), time.Now(), nil)
	r.ConfigPath = ""

	var buf bytes.Buffer
	require.NoError(t, Run(&buf, r, NewDefaultTheme()))
	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "<none>")
	assert.Contains(t, out, "5 processed")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, snapshot()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "main", decoded["name"])
	assert.Len(t, decoded["handlers"], 2)
}
