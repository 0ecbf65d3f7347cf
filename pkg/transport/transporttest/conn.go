// Package transporttest provides transport doubles: an in-memory Conn and a
// websocket gateway speaking the JSON frame protocol.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/mahaj/chat-client/pkg/transport"
)

// Emitted is one recorded outbound event.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Conn is an in-memory transport.Conn. Deliver runs handlers synchronously on
// the calling goroutine, which keeps tests free of timing.
type Conn struct {
	mu        sync.Mutex
	next      transport.ListenerID
	handlers  map[string][]entry
	emitted   []Emitted
	connected bool
	closed    bool
	emitErr   error
}

type entry struct {
	id transport.ListenerID
	h  transport.Handler
}

var _ transport.Conn = (*Conn)(nil)

func NewConn() *Conn {
	return &Conn{handlers: make(map[string][]entry), connected: true}
}

func (c *Conn) On(event string, h transport.Handler) transport.ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.handlers[event] = append(c.handlers[event], entry{id: c.next, h: h})
	return c.next
}

func (c *Conn) Off(event string, id transport.ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := c.handlers[event]
	for i, e := range hs {
		if e.id == id {
			c.handlers[event] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

func (c *Conn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: raw})
	return nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailEmits makes every later Emit return err. nil restores normal behaviour.
func (c *Conn) FailEmits(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

// Deliver simulates an inbound event. payload is JSON encoded first.
func (c *Conn) Deliver(event string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	c.mu.Lock()
	hs := append([]entry(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, e := range hs {
		e.h(raw)
	}
}

// Listeners returns the number of handlers registered for event.
func (c *Conn) Listeners(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Emitted returns every recorded outbound event, optionally filtered by name.
func (c *Conn) Emitted(events ...string) []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(events) == 0 {
		return append([]Emitted(nil), c.emitted...)
	}
	var out []Emitted
	for _, e := range c.emitted {
		for _, name := range events {
			if e.Event == name {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Reset forgets recorded emits.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = nil
}

// Decode unmarshals a recorded payload into T.
func Decode[T any](e Emitted) T {
	var v T
	_ = json.Unmarshal(e.Payload, &v)
	return v
}
