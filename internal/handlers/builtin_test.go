package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
	"github.com/mattjoyce/goon/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	eng, err := engine.New("handlers", opts...)
	require.NoError(t, err)
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Destroy)
	return eng
}

func newEvent(t *testing.T, eng *engine.Engine, name string, p event.Priority, payload event.Payload) *event.Event {
	t.Helper()
	ev, err := eng.NewEvent(name, p)
	require.NoError(t, err)
	if payload != nil {
		ev.SetPayload(payload)
	}
	return ev
}

func TestEchoDescribesPayload(t *testing.T) {
	eng := newEngine(t)
	var out bytes.Buffer
	h := &Echo{Out: &out}

	ev := newEvent(t, eng, "user.login", event.PriorityHigh, event.Text{Value: "alice"})
	require.NoError(t, h.Handle(context.Background(), eng, ev))

	got := out.String()
	assert.Contains(t, got, "[ECHO] Event: user.login")
	assert.Contains(t, got, "Priority: high")
	assert.Contains(t, got, "Data type: text, size: 5")
	assert.Contains(t, got, "String value: alice")
}

func TestLoggerWritesLine(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	eng := newEngine(t, engine.WithClock(func() time.Time { return at }))
	var out bytes.Buffer

	ev := newEvent(t, eng, "tick", event.PriorityNormal, nil)
	require.NoError(t, (&Logger{Out: &out}).Handle(context.Background(), eng, ev))
	assert.Equal(t, "[LOG] 2024-01-02T03:04:05Z - Event: tick (ID: 1)\n", out.String())

	assert.NoError(t, (&Logger{}).Handle(context.Background(), eng, ev))
}

func TestCounter(t *testing.T) {
	eng := newEngine(t)
	h := &Counter{}
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "e", event.PriorityLow, nil)))
	}
	assert.Equal(t, uint64(3), h.Count())
}

func TestCacheWriterStoresPayloadBytes(t *testing.T) {
	eng := newEngine(t)
	h := CacheWriter{}

	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "greeting", event.PriorityNormal, event.Text{Value: "hi"})))
	v, ok := eng.Cache().Get("greeting")
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), v)

	// Borrowed pointers have no byte form and are not cached.
	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "ptr", event.PriorityNormal, event.Pointer{Ref: &struct{}{}})))
	assert.False(t, eng.Cache().Contains("ptr"))

	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "none", event.PriorityNormal, nil)))
	assert.Equal(t, 1, eng.Cache().Len())
}

func TestValidator(t *testing.T) {
	eng := newEngine(t)
	h := Validator{}

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "ok", event.PriorityCritical, nil)))

	empty := event.New(1, "", event.PriorityNormal, time.Now())
	assert.True(t, errors.Is(h.Handle(context.Background(), eng, empty), errs.ErrInvalidParam))

	bad := event.New(2, "bad", event.Priority(7), time.Now())
	assert.True(t, errors.Is(h.Handle(context.Background(), eng, bad), errs.ErrInvalidParam))
}

func TestFilter(t *testing.T) {
	eng := newEngine(t)
	h := &Filter{Prefix: "user."}

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "user.login", event.PriorityNormal, nil)))

	err := h.Handle(context.Background(), eng, newEvent(t, eng, "system.boot", event.PriorityNormal, nil))
	assert.True(t, errors.Is(err, ErrFiltered))
	assert.True(t, errors.Is(err, errs.ErrFailed))

	assert.NoError(t, (&Filter{}).Handle(context.Background(), eng, newEvent(t, eng, "anything", event.PriorityNormal, nil)))
}

func TestStatisticsCountsByPriority(t *testing.T) {
	eng := newEngine(t, engine.WithDebug(true))
	var out bytes.Buffer
	h := &Statistics{Out: &out}

	for _, p := range []event.Priority{event.PriorityLow, event.PriorityHigh, event.PriorityHigh} {
		require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "e", p, nil)))
	}

	assert.Equal(t, uint64(1), h.Count(event.PriorityLow))
	assert.Equal(t, uint64(2), h.Count(event.PriorityHigh))
	assert.Equal(t, uint64(0), h.Count(event.Priority(9)))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[STATS] Priority distribution - Low: 1, Normal: 0, High: 2, Critical: 0", lines[2])
}

func TestTransformer(t *testing.T) {
	eng := newEngine(t)
	h := Transformer{}

	ev := newEvent(t, eng, "t", event.PriorityNormal, event.Text{Value: "hello World"})
	require.NoError(t, h.Handle(context.Background(), eng, ev))
	assert.Equal(t, event.Text{Value: "HELLO WORLD"}, ev.Payload())

	num := newEvent(t, eng, "n", event.PriorityNormal, event.Int{Value: 5})
	require.NoError(t, h.Handle(context.Background(), eng, num))
	assert.Equal(t, event.Int{Value: 5}, num.Payload())

	err := h.Handle(context.Background(), eng, newEvent(t, eng, "empty", event.PriorityNormal, nil))
	assert.True(t, errors.Is(err, ErrNoPayload))
	assert.True(t, errors.Is(err, errs.ErrNullInput))
}

func TestDuplicateDetector(t *testing.T) {
	eng := newEngine(t)
	h := DuplicateDetector{}

	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "order.created", event.PriorityNormal, nil)))
	assert.True(t, eng.Cache().Contains("event_order.created"))

	err := h.Handle(context.Background(), eng, newEvent(t, eng, "order.created", event.PriorityNormal, nil))
	assert.True(t, errors.Is(err, ErrDuplicate))

	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "order.paid", event.PriorityNormal, nil)))
}

// Duplicate detection only remembers what the cache still holds.
func TestDuplicateDetectorForgetsEvicted(t *testing.T) {
	eng := newEngine(t, engine.WithCacheCapacity(1))
	h := DuplicateDetector{}

	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "a", event.PriorityNormal, nil)))
	require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "b", event.PriorityNormal, nil)))
	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "a", event.PriorityNormal, nil)))
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eng := newEngine(t, engine.WithClock(func() time.Time { return now }))
	h := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "burst", event.PriorityNormal, nil)))
	}
	err := h.Handle(context.Background(), eng, newEvent(t, eng, "burst", event.PriorityNormal, nil))
	assert.True(t, errors.Is(err, ErrRateLimited))

	now = now.Add(time.Second)
	assert.NoError(t, h.Handle(context.Background(), eng, newEvent(t, eng, "later", event.PriorityNormal, nil)))

	assert.Equal(t, DefaultRateLimit, NewRateLimiter(0).Limit())
}

// Gate failures are advisory: the events still reach later handlers.
func TestGateHandlersDoNotStopDispatch(t *testing.T) {
	eng := newEngine(t, engine.WithDispatchOrder(engine.OrderRegistration))
	counter := &Counter{}
	filter, err := engine.NewRegistration("filter", &Filter{Prefix: "user."})
	require.NoError(t, err)
	require.NoError(t, eng.Register(filter))
	r, err := engine.NewRegistration("counter", counter)
	require.NoError(t, err)
	require.NoError(t, eng.Register(r))

	require.NoError(t, eng.Emit(newEvent(t, eng, "system.boot", event.PriorityNormal, nil)))
	_, err = eng.ProcessEvents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), counter.Count())
	assert.Equal(t, uint64(1), filter.Stats().Errors)
}
