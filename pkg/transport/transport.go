// Package transport owns the real-time connection to the chat backend.
//
// A Conn delivers inbound events to registered handlers one at a time, in the
// order the backend sent them, on a single dispatch goroutine. Handlers may be
// registered and removed from any goroutine, so several views can share one
// connection.
package transport

import (
	"encoding/json"
	"errors"
	"sync"
)

// Events raised by the transport itself, never sent by the backend.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

const defaultQueueSize = 256

var (
	ErrClosed     = errors.New("transport closed")
	ErrBufferFull = errors.New("transport send buffer full")
)

// Handler receives the raw JSON payload of one event.
type Handler func(payload json.RawMessage)

// ListenerID identifies a registered handler for Off.
type ListenerID uint64

type Subscriber interface {
	On(event string, h Handler) ListenerID
	Off(event string, id ListenerID)
}

type Emitter interface {
	Emit(event string, payload any) error
}

// Conn is a live, self-reconnecting event connection.
type Conn interface {
	Subscriber
	Emitter
	Connected() bool
	Close() error
}

type listener struct {
	id ListenerID
	h  Handler
}

type delivery struct {
	event   string
	payload json.RawMessage
}

// Registry stores handlers and dispatches events to them sequentially.
// Dialers embed it to implement the Subscriber half of Conn.
type Registry struct {
	mu       sync.RWMutex
	next     ListenerID
	handlers map[string][]listener

	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Registry{
		handlers: make(map[string][]listener),
		queue:    make(chan delivery, queueSize),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Registry) On(event string, h Handler) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers[event] = append(r.handlers[event], listener{id: r.next, h: h})
	return r.next
}

func (r *Registry) Off(event string, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.handlers[event]
	for i, l := range ls {
		if l.id == id {
			r.handlers[event] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(r.handlers[event]) == 0 {
		delete(r.handlers, event)
	}
}

// Listeners returns how many handlers are registered for event.
func (r *Registry) Listeners(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Dispatch queues an event for delivery. It blocks while the queue is full
// and returns false once the registry is closed.
func (r *Registry) Dispatch(event string, payload json.RawMessage) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.queue <- delivery{event: event, payload: payload}:
		return true
	case <-r.done:
		return false
	}
}

// Close stops dispatching. Queued events are dropped.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.done:
			return
		case d := <-r.queue:
			r.mu.RLock()
			ls := append([]listener(nil), r.handlers[d.event]...)
			r.mu.RUnlock()
			for _, l := range ls {
				l.h(d.payload)
			}
		}
	}
}

// Decode unmarshals a handler payload into v.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, errors.New("empty payload")
	}
	err := json.Unmarshal(payload, &v)
	return v, err
}
