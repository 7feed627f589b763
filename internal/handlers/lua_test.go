package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

func TestLuaHandlerSeesEvent(t *testing.T) {
	eng := newEngine(t)
	h, err := NewLua(`
function handle(ev)
  cache_set("last", ev.name .. ":" .. ev.priority_name .. ":" .. tostring(ev.payload))
end
`)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "user.login", event.PriorityHigh, event.Int{Value: 42})))

	v, ok := eng.Cache().Get("last")
	require.True(t, ok)
	assert.Equal(t, "user.login:high:42", string(v))
}

func TestLuaHandlerFailures(t *testing.T) {
	eng := newEngine(t)
	h, err := NewLua(`
function handle(ev)
  if ev.name == "reject" then
    return false, "not allowed"
  end
  if ev.name == "raise" then
    error("exploded")
  end
  return true
end
`)
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "fine", event.PriorityNormal, nil)))

	err = h.Handle(context.Background(), eng, newEvent(t, eng, "reject", event.PriorityNormal, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrFailed))
	assert.Contains(t, err.Error(), "not allowed")

	err = h.Handle(context.Background(), eng, newEvent(t, eng, "raise", event.PriorityNormal, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
}

func TestLuaHandlerCacheRoundTrip(t *testing.T) {
	eng := newEngine(t)
	require.NoError(t, eng.Cache().Set("seen", []byte("yes")))

	h, err := NewLua(`
function handle(ev)
  if cache_get("seen") ~= "yes" then
    return false, "cache miss"
  end
  if cache_get("missing") ~= nil then
    return false, "phantom key"
  end
  log("checked " .. ev.name)
end
`)
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "ping", event.PriorityNormal, nil)))
}

func TestNewLuaRejectsBadScripts(t *testing.T) {
	_, err := NewLua(`this is not lua`)
	assert.True(t, errors.Is(err, errs.ErrInvalidParam))

	_, err = NewLua(`x = 1`)
	assert.True(t, errors.Is(err, errs.ErrInvalidParam))
}

func TestLuaSandboxHidesLoaders(t *testing.T) {
	eng := newEngine(t)
	h, err := NewLua(`
function handle(ev)
  if dofile ~= nil or load ~= nil or os ~= nil or io ~= nil then
    return false, "unsafe globals visible"
  end
end
`)
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "ping", event.PriorityNormal, nil)))
}
