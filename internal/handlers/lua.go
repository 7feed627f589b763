package handlers

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

// LuaEntryPoint is the global function a script must define.
const LuaEntryPoint = "handle"

// Lua runs a script's handle(event) function for each event. The script
// sees the event as a table with id, name, priority, priority_name,
// timestamp and, for value payloads, payload. It may call cache_get(key),
// cache_set(key, value) and log(msg).
//
// handle fails the call by returning false (or nil) plus a message, or by
// raising an error. Returning nothing or true succeeds.
type Lua struct {
	L   *lua.LState
	eng *engine.Engine
}

// NewLua loads script into a fresh sandboxed state.
func NewLua(script string) (*Lua, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	h := &Lua{L: L}
	L.SetGlobal("cache_get", L.NewFunction(h.cacheGet))
	L.SetGlobal("cache_set", L.NewFunction(h.cacheSet))
	L.SetGlobal("log", L.NewFunction(h.log))

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("load lua script: %w: %w", errs.ErrInvalidParam, err)
	}
	if fn := L.GetGlobal(LuaEntryPoint); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("lua script does not define %s(event): %w", LuaEntryPoint, errs.ErrInvalidParam)
	}
	return h, nil
}

// openSafeLibraries opens base, table, string and math only.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (h *Lua) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) (err error) {
	h.eng = eng
	defer func() { h.eng = nil }()

	L := h.L
	err = L.CallByParam(lua.P{
		Fn:      L.GetGlobal(LuaEntryPoint),
		NRet:    2,
		Protect: true,
	}, h.eventTable(ev))
	if err != nil {
		return fmt.Errorf("lua handle %s: %w: %w", ev, errs.ErrFailed, err)
	}

	ok, msg := L.Get(-2), L.Get(-1)
	L.Pop(2)
	if ok == lua.LNil && msg == lua.LNil {
		return nil
	}
	if lua.LVAsBool(ok) {
		return nil
	}
	reason := lua.LVAsString(msg)
	if reason == "" {
		reason = "rejected"
	}
	return fmt.Errorf("lua handle %s: %s: %w", ev, reason, errs.ErrFailed)
}

// Close releases the Lua state.
func (h *Lua) Close() { h.L.Close() }

func (h *Lua) eventTable(ev *event.Event) *lua.LTable {
	L := h.L
	t := L.NewTable()
	t.RawSetString("id", lua.LNumber(ev.ID))
	t.RawSetString("name", lua.LString(ev.Name))
	t.RawSetString("priority", lua.LNumber(ev.Priority))
	t.RawSetString("priority_name", lua.LString(ev.Priority.String()))
	t.RawSetString("timestamp", lua.LNumber(ev.CreatedAt.Unix()))

	switch p := ev.Payload().(type) {
	case event.Text:
		t.RawSetString("payload", lua.LString(p.Value))
	case event.Int:
		t.RawSetString("payload", lua.LNumber(p.Value))
	case event.Float:
		t.RawSetString("payload", lua.LNumber(p.Value))
	case event.Bool:
		t.RawSetString("payload", lua.LBool(p.Value))
	}
	return t
}

func (h *Lua) cacheGet(L *lua.LState) int {
	key := L.CheckString(1)
	if h.eng == nil {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := h.eng.Cache().Get(key)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

func (h *Lua) cacheSet(L *lua.LState) int {
	key := L.CheckString(1)
	value := L.CheckString(2)
	if h.eng == nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString("no engine"))
		return 2
	}
	if err := h.eng.Cache().Set(key, []byte(value)); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (h *Lua) log(L *lua.LState) int {
	msg := L.CheckString(1)
	if h.eng != nil {
		h.eng.Logger().Info("lua", "msg", msg)
	}
	return 0
}
