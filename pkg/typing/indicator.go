package typing

import (
	"encoding/json"
	"sync"

	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/transport"
)

// Indicator tracks whether the peer of one thread is typing. It trusts the
// peer's stop signal and never times out on its own.
type Indicator struct {
	room string
	peer string

	mu        sync.Mutex
	typing    bool
	listeners []func(bool)
}

func NewIndicator(self, peer string) *Indicator {
	return &Indicator{room: model.ThreadID(self, peer), peer: peer}
}

// Observe applies a typing event and reports whether the state changed.
// Events for other rooms or from anyone but the peer are ignored.
func (in *Indicator) Observe(t model.Typing) bool {
	if t.Room != in.room || t.From != in.peer {
		return false
	}
	in.mu.Lock()
	if in.typing == t.IsTyping {
		in.mu.Unlock()
		return false
	}
	in.typing = t.IsTyping
	fns := append([]func(bool){}, in.listeners...)
	in.mu.Unlock()

	for _, fn := range fns {
		fn(t.IsTyping)
	}
	return true
}

func (in *Indicator) Typing() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.typing
}

func (in *Indicator) OnChange(fn func(typing bool)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.listeners = append(in.listeners, fn)
}

// Bind feeds typing events from sub into the indicator until unbind is called.
func (in *Indicator) Bind(sub transport.Subscriber) (unbind func()) {
	id := sub.On(model.EventTyping, func(payload json.RawMessage) {
		if t, err := transport.Decode[model.Typing](payload); err == nil {
			in.Observe(t)
		}
	})
	var once sync.Once
	return func() { once.Do(func() { sub.Off(model.EventTyping, id) }) }
}
