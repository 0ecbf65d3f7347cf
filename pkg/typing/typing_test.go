package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signal struct {
	at     time.Duration
	typing bool
}

// timedEmitter records typing signals with the mock clock's offset. Mock
// timers call back on their own goroutine, so tests move the clock exactly
// to a deadline and then wait for the signal.
type timedEmitter struct {
	mu    sync.Mutex
	clk   *clock.Mock
	start time.Time
	got   []signal
	last  model.Typing
}

func (e *timedEmitter) Emit(event string, payload any) error {
	t := payload.(model.Typing)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, signal{at: e.clk.Now().Sub(e.start), typing: t.IsTyping})
	e.last = t
	return nil
}

func (e *timedEmitter) signals() []signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]signal(nil), e.got...)
}

func (e *timedEmitter) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(e.signals()) >= n }, time.Second, time.Millisecond)
}

func (e *timedEmitter) settled(t *testing.T, n int) {
	t.Helper()
	assert.Never(t, func() bool { return len(e.signals()) > n }, 50*time.Millisecond, 5*time.Millisecond)
}

func newTimed() (*timedEmitter, *clock.Mock) {
	start := time.UnixMilli(0)
	clk := clock.NewMock()
	clk.Set(start)
	return &timedEmitter{clk: clk, start: start}, clk
}

func TestDebounceBurst(t *testing.T) {
	out, clk := newTimed()
	d := NewDebouncer(out, "me", "nasir", WithClock(clk))

	d.Changed()
	clk.Add(300 * time.Millisecond)
	d.Changed()
	clk.Add(300 * time.Millisecond)
	d.Changed()
	clk.Add(1200 * time.Millisecond)
	out.waitFor(t, 2)

	clk.Add(5 * time.Second)
	out.settled(t, 2)
	require.Equal(t, []signal{{0, true}, {1800 * time.Millisecond, false}}, out.signals())
	out.mu.Lock()
	defer out.mu.Unlock()
	require.Equal(t, model.Typing{Room: "me:nasir", From: "me", IsTyping: false}, out.last)
}

func TestDebounceIdleCountsFromLastKeystroke(t *testing.T) {
	out, clk := newTimed()
	d := NewDebouncer(out, "me", "nasir", WithClock(clk))

	// Twenty keystrokes 100ms apart span well past one delay.
	for i := 0; i < 20; i++ {
		d.Changed()
		clk.Add(100 * time.Millisecond)
	}
	out.settled(t, 1)
	require.Len(t, out.signals(), 1)

	clk.Add(1100 * time.Millisecond)
	out.waitFor(t, 2)
	out.settled(t, 2)
	require.Equal(t, []signal{{0, true}, {3100 * time.Millisecond, false}}, out.signals())
}

func TestDebounceNewBurstAfterStop(t *testing.T) {
	out, clk := newTimed()
	d := NewDebouncer(out, "me", "nasir", WithClock(clk), WithDelay(time.Second))

	d.Changed()
	clk.Add(time.Second)
	out.waitFor(t, 2)
	d.Changed()
	clk.Add(time.Second)
	out.waitFor(t, 4)

	require.Equal(t, []signal{
		{0, true},
		{time.Second, false},
		{time.Second, true},
		{2 * time.Second, false},
	}, out.signals())
}

func TestFlushStopsOpenBurst(t *testing.T) {
	out, clk := newTimed()
	d := NewDebouncer(out, "me", "nasir", WithClock(clk))

	d.Flush()
	require.Empty(t, out.signals())

	d.Changed()
	clk.Add(200 * time.Millisecond)
	d.Flush()
	clk.Add(5 * time.Second)

	out.settled(t, 2)
	require.Equal(t, []signal{{0, true}, {200 * time.Millisecond, false}}, out.signals())
}

func TestDebouncerEmitsOnConn(t *testing.T) {
	conn := transporttest.NewConn()
	d := NewDebouncer(conn, "nasir", "me", WithClock(clock.NewMock()))
	require.Equal(t, "me:nasir", d.Room())

	d.Changed()
	emitted := conn.Emitted(model.EventTyping)
	require.Len(t, emitted, 1)
	assert.Equal(t, model.Typing{Room: "me:nasir", From: "nasir", IsTyping: true},
		transporttest.Decode[model.Typing](emitted[0]))
}

func TestIndicatorFollowsPeer(t *testing.T) {
	in := NewIndicator("me", "nasir")
	var seen []bool
	in.OnChange(func(v bool) { seen = append(seen, v) })

	require.True(t, in.Observe(model.Typing{Room: "me:nasir", From: "nasir", IsTyping: true}))
	require.False(t, in.Observe(model.Typing{Room: "me:nasir", From: "nasir", IsTyping: true}))
	require.True(t, in.Typing())

	require.False(t, in.Observe(model.Typing{Room: "me:samin", From: "samin", IsTyping: false}))
	require.False(t, in.Observe(model.Typing{Room: "me:nasir", From: "me", IsTyping: false}))
	require.True(t, in.Typing())

	require.True(t, in.Observe(model.Typing{Room: "me:nasir", From: "nasir", IsTyping: false}))
	require.False(t, in.Typing())
	require.Equal(t, []bool{true, false}, seen)
}

func TestIndicatorBind(t *testing.T) {
	conn := transporttest.NewConn()
	in := NewIndicator("me", "nasir")
	unbind := in.Bind(conn)

	conn.Deliver(model.EventTyping, model.Typing{Room: "me:nasir", From: "nasir", IsTyping: true})
	require.True(t, in.Typing())

	unbind()
	require.Zero(t, conn.Listeners(model.EventTyping))
	conn.Deliver(model.EventTyping, model.Typing{Room: "me:nasir", From: "nasir", IsTyping: false})
	require.True(t, in.Typing())
}
