// Package typing implements both ends of the typing indicator: a debouncer
// that turns keystrokes into started/stopped signals, and an indicator that
// tracks whether the peer is typing.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/rs/zerolog"
)

// DefaultDelay is how long input must stay idle before typing-stopped.
const DefaultDelay = 1200 * time.Millisecond

type Option func(*Debouncer)

func WithDelay(d time.Duration) Option {
	return func(db *Debouncer) {
		if d > 0 {
			db.delay = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(db *Debouncer) { db.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(db *Debouncer) { db.log = l }
}

// Debouncer emits typing-started on the first keystroke of a burst and
// typing-stopped once input has been idle for the delay. At most one timer
// is live at a time.
type Debouncer struct {
	out   transport.Emitter
	room  string
	self  string
	delay time.Duration
	clock clock.Clock
	log   zerolog.Logger

	mu     sync.Mutex
	typing bool
	timer  *clock.Timer
	seq    uint64
}

func NewDebouncer(out transport.Emitter, self, peer string, opts ...Option) *Debouncer {
	d := &Debouncer{
		out:   out,
		room:  model.ThreadID(self, peer),
		self:  self,
		delay: DefaultDelay,
		clock: clock.New(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Debouncer) Room() string { return d.room }

// Changed records one keystroke.
func (d *Debouncer) Changed() {
	d.mu.Lock()
	start := !d.typing
	d.typing = true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() { d.expire(seq) })
	d.mu.Unlock()

	if start {
		d.emit(true)
	}
}

// Flush ends an open burst immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.typing {
		d.mu.Unlock()
		return
	}
	d.typing = false
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.emit(false)
}

// expire fires when the idle timer elapses. A timer superseded by a later
// keystroke or a Flush carries an old seq and does nothing.
func (d *Debouncer) expire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.typing {
		d.mu.Unlock()
		return
	}
	d.typing = false
	d.timer = nil
	d.mu.Unlock()

	d.emit(false)
}

func (d *Debouncer) emit(isTyping bool) {
	err := d.out.Emit(model.EventTyping, model.Typing{Room: d.room, From: d.self, IsTyping: isTyping})
	if err != nil {
		d.log.Debug().Err(err).Bool("typing", isTyping).Msg("emit typing")
	}
}
