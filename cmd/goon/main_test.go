package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/history"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain both pipes while run executes so large output cannot block it.
	outCh := make(chan []byte)
	errCh := make(chan []byte)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes := <-outCh
	stderrBytes := <-errCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "goon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const quietHandlers = `
service:
  name: cli-test
  log_level: error
handlers:
  - name: counter
    kind: counter
    config:
      quiet: true
  - name: validator
    kind: validator
  - name: stats
    kind: statistics
`

func TestRunCLIUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI(nil) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "goon - in-process prioritized event dispatcher")

	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"bogus"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.BuildTime)
}

func TestExecuteRunDemoJSON(t *testing.T) {
	dir := t.TempDir()
	opts := runOptions{
		configPath: writeConfig(t, dir, quietHandlers),
		envFile:    filepath.Join(dir, "missing.env"),
		demo:       6,
		jsonOut:    true,
	}

	var out bytes.Buffer
	require.NoError(t, executeRun(context.Background(), opts, &out))

	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "cli-test", snap.Name)
	assert.Equal(t, "terminated", snap.State)
	assert.Equal(t, uint64(6), snap.Processed)
	require.Len(t, snap.Handlers, 3)
	// Newest first by default.
	assert.Equal(t, "stats", snap.Handlers[0].Name)
	for _, h := range snap.Handlers {
		assert.Equal(t, uint64(6), h.Calls, h.Name)
	}
}

func TestExecuteRunOverflowDrainsAndRetries(t *testing.T) {
	dir := t.TempDir()
	cfg := quietHandlers + "engine:\n  queue_size: 2\n"
	opts := runOptions{
		configPath: writeConfig(t, dir, cfg),
		envFile:    filepath.Join(dir, "missing.env"),
		demo:       7,
		jsonOut:    true,
	}

	var out bytes.Buffer
	require.NoError(t, executeRun(context.Background(), opts, &out))

	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, uint64(7), snap.Processed)
	assert.Equal(t, uint64(3), snap.Rejected)
}

func TestExecuteRunEventsFileMetricsAndHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfg := quietHandlers + "history:\n  enabled: true\n  path: " + dbPath + "\n"
	eventsPath := filepath.Join(dir, "events.txt")
	require.NoError(t, os.WriteFile(eventsPath, []byte(
		"# two events\n"+
			"EVENT{id:41,name:alpha,priority:2,timestamp:1700000000}\n"+
			"\n"+
			"EVENT{id:42,name:beta,priority:0,timestamp:1700000001}\n",
	), 0600))

	opts := runOptions{
		configPath:  writeConfig(t, dir, cfg),
		envFile:     filepath.Join(dir, "missing.env"),
		eventsPath:  eventsPath,
		metrics:     true,
		diagnostics: true,
		telemetry:   true,
	}

	var out bytes.Buffer
	require.NoError(t, executeRun(context.Background(), opts, &out))
	text := out.String()
	assert.Contains(t, text, "Goon Context Statistics")
	assert.Contains(t, text, `goon_events_processed_total{context="cli-test"} 2`)
	assert.Contains(t, text, `"kind":"state.changed"`)
	assert.Contains(t, text, `"goon.handler.calls": 6`)
	assert.Contains(t, text, "Recorded run")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "list", "--db", dbPath, "--json"})
	})
	require.Equal(t, 0, code, stderr)

	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(2), runs[0].Processed)
	assert.NotEmpty(t, runs[0].ConfigHash)

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "show", "--db", dbPath, runs[0].ID})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "validator")
}

func TestHistoryPrune(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfg := quietHandlers + "history:\n  enabled: true\n  path: " + dbPath + "\n"
	opts := runOptions{
		configPath: writeConfig(t, dir, cfg),
		envFile:    filepath.Join(dir, "missing.env"),
		demo:       2,
	}
	var out bytes.Buffer
	require.NoError(t, executeRun(context.Background(), opts, &out))

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "prune", "--db", dbPath, "--before", "2000-01-01"})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Pruned 0 run(s)")

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "prune", "--db", dbPath, "--before", "0s", "--json"})
	})
	require.Equal(t, 0, code, stderr)
	var res struct {
		Pruned int64 `json:"pruned"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, int64(1), res.Pruned)

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "prune", "--db", dbPath})
	})
	assert.Equal(t, 1, code, "missing --before is a usage error")
}

func TestParseCutoff(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "24h", want: now.Add(-24 * time.Hour)},
		{in: "2026-01-01", want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2026-02-03T04:05:06Z", want: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)},
		{in: "-1h", wantErr: true},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseCutoff(tt.in, now)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCutoff(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCutoff(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseCutoff(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExecuteRunWatch(t *testing.T) {
	old := watchInput
	watchInput = nil
	t.Cleanup(func() { watchInput = old })

	dir := t.TempDir()
	cfg := quietHandlers + "worker:\n  tick_interval: 5ms\n"
	opts := runOptions{
		configPath: writeConfig(t, dir, cfg),
		envFile:    filepath.Join(dir, "missing.env"),
		demo:       4,
		watch:      true,
		linger:     200 * time.Millisecond,
	}

	var out bytes.Buffer
	require.NoError(t, executeRun(context.Background(), opts, &out))
	text := out.String()
	assert.Contains(t, text, "GOON WATCH")
	assert.Contains(t, text, "Goon Context Statistics")
	assert.Contains(t, text, "terminated")
}

func TestRunWatchRejectsJSON(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"run", "--watch", "--json"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--watch and --json")
}

func TestHistoryShowMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "show", "--db", dbPath, "nope"})
	})
	assert.Equal(t, -errs.CodeNotFound, code)
	assert.Contains(t, stderr, "not found")
}

func TestConfigLockAndCheck(t *testing.T) {
	path := writeConfig(t, t.TempDir(), quietHandlers)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "unlocked")

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "blake3:")

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--json"})
	})
	require.Equal(t, 0, code)
	var res configCheckResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Locked)
	assert.Equal(t, 3, res.Handlers)

	require.NoError(t, os.WriteFile(path, []byte(quietHandlers+"\n# edited\n"), 0600))
	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "checksum mismatch")
}

func TestConfigCheckUnknownKind(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "handlers:\n  - kind: teleport\n")
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	assert.Equal(t, -errs.CodeInvalidParam, code)
	assert.Contains(t, stderr, "unknown kind")
}

func TestConfigShowDefaults(t *testing.T) {
	t.Setenv("GOON_CONFIG", "")
	t.Chdir(t.TempDir())

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show"})
	})
	require.Equal(t, 0, code)
	assert.True(t, strings.Contains(stdout, "queue_size: 1024"), stdout)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("GOON_TEST_FROM_DOTENV=dotenv\n"), 0600))
	t.Setenv("GOON_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("GOON_TEST_FROM_DOTENV"))

	require.NoError(t, loadEnvFile(envPath, true))
	assert.Equal(t, "dotenv", os.Getenv("GOON_TEST_FROM_DOTENV"))

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "absent.env"), false))
	assert.Error(t, loadEnvFile(filepath.Join(dir, "absent.env"), true))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
	assert.Equal(t, 1, exitCode(errs.ErrInvalidState))
	assert.Equal(t, 6, exitCode(errs.ErrOverflow))
}
