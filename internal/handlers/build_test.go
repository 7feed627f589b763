package handlers

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/errs"
)

func TestBuildEveryKind(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "h.lua")
	require.NoError(t, os.WriteFile(script, []byte("function handle(ev) end"), 0o644))

	cfgs := map[string]map[string]any{
		KindFilter:      {"prefix": "user."},
		KindRateLimiter: {"limit": 5},
		KindLua:         {"script_file": script},
		KindLogger:      {"output": "stdout"},
		KindCounter:     {"quiet": true},
	}
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			h, err := Build(kind, cfgs[kind], &bytes.Buffer{})
			require.NoError(t, err)
			require.NotNil(t, h)
			Close(h)
		})
	}
	assert.Len(t, Kinds(), 11)
}

func TestBuildConfigValues(t *testing.T) {
	h, err := Build(KindRateLimiter, map[string]any{"limit": float64(25)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, h.(*RateLimiter).Limit())

	h, err = Build(KindFilter, map[string]any{"prefix": "sys."}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sys.", h.(*Filter).Prefix)

	h, err = Build(KindCounter, map[string]any{"quiet": true}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Nil(t, h.(*Counter).Out)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cases := []struct {
		kind string
		cfg  map[string]any
	}{
		{"nope", nil},
		{KindFilter, map[string]any{"prefix": 3}},
		{KindRateLimiter, map[string]any{"limit": "fast"}},
		{KindRateLimiter, map[string]any{"limit": -1}},
		{KindRateLimiter, map[string]any{"limit": 1.5}},
		{KindLogger, map[string]any{"output": "syslog"}},
		{KindCounter, map[string]any{"quiet": "yes"}},
		{KindLua, nil},
	}
	for _, tc := range cases {
		_, err := Build(tc.kind, tc.cfg, nil)
		assert.True(t, errors.Is(err, errs.ErrInvalidParam), "%s %v: %v", tc.kind, tc.cfg, err)
	}

	_, err := Build(KindLua, map[string]any{"script_file": filepath.Join(t.TempDir(), "missing.lua")}, nil)
	assert.Error(t, err)
}
