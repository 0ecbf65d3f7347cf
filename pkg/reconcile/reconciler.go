// Package reconcile keeps the message list of the open thread consistent
// while optimistic sends, the history page and live events race each other.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/snowflake"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/rs/zerolog"
)

const DefaultHistoryLimit = 50

// ErrStaleThread is returned by LoadHistory when the active thread changed
// while the page was in flight. The page is discarded.
var ErrStaleThread = errors.New("thread changed while loading history")

// HistorySource is the HTTP side of a thread. *api.Client satisfies it.
type HistorySource interface {
	History(ctx context.Context, self, peer string, limit int) ([]model.Message, error)
	MarkRead(ctx context.Context, self, peer string) error
}

// IDSource produces temporary ids for optimistic sends.
type IDSource interface {
	TempID() string
}

type Option func(*Reconciler)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

func WithIDs(ids IDSource) Option {
	return func(r *Reconciler) { r.ids = ids }
}

func WithHistoryLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.limit = n
		}
	}
}

// Reconciler owns the message list of the thread between self and the
// active peer. All mutations go through one merge path, so the list stays
// unique by id and ordered by timestamp whatever order events arrive in.
type Reconciler struct {
	self  string
	src   HistorySource
	out   transport.Emitter
	ids   IDSource
	clock clock.Clock
	limit int
	log   zerolog.Logger

	mu        sync.Mutex
	peer      string
	gen       uint64
	thread    *thread
	listeners []func()
}

func New(self, peer string, src HistorySource, out transport.Emitter, opts ...Option) *Reconciler {
	r := &Reconciler{
		self:   self,
		peer:   peer,
		src:    src,
		out:    out,
		limit:  DefaultHistoryLimit,
		log:    zerolog.Nop(),
		thread: newThread(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.ids == nil {
		// Node 0 is always in range.
		r.ids, _ = snowflake.NewGenerator(0, r.clock)
	}
	return r
}

func (r *Reconciler) Self() string { return r.self }

func (r *Reconciler) Peer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

// Messages returns a copy of the ordered thread.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thread.snapshot()
}

// OnChange registers fn to run after every mutation of the list.
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Switch makes peer the active thread. The list is cleared and any history
// load still in flight for the previous peer becomes stale.
func (r *Reconciler) Switch(peer string) {
	r.mu.Lock()
	if peer == r.peer {
		r.mu.Unlock()
		return
	}
	r.peer = peer
	r.gen++
	r.thread.reset()
	r.mu.Unlock()
	r.notify()
}

// LoadHistory replaces the thread with the latest history page and then
// marks the thread read on the backend without waiting for the answer.
func (r *Reconciler) LoadHistory(ctx context.Context) error {
	r.mu.Lock()
	r.gen++
	gen, peer := r.gen, r.peer
	r.thread.reset()
	r.mu.Unlock()
	r.notify()

	page, err := r.src.History(ctx, r.self, peer, r.limit)
	if err != nil {
		r.log.Warn().Err(err).Str("peer", peer).Msg("load history")
		return err
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.log.Debug().Str("peer", peer).Msg("discard stale history page")
		return ErrStaleThread
	}
	for _, m := range page {
		m.Status = model.StatusNone
		if m.From == r.self {
			m.Status = model.StatusSent
		}
		r.thread.upsert(m)
	}
	r.mu.Unlock()
	r.notify()

	go func() {
		if err := r.src.MarkRead(context.WithoutCancel(ctx), r.self, peer); err != nil {
			r.log.Debug().Err(err).Str("peer", peer).Msg("mark read")
		}
	}()
	return nil
}

// Send appends an optimistic entry and emits it. Blank text is ignored and
// reported with false.
func (r *Reconciler) Send(text string) (model.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, false
	}
	tempID := r.ids.TempID()

	r.mu.Lock()
	m := model.Message{
		ID:     tempID,
		TempID: tempID,
		From:   r.self,
		To:     r.peer,
		Text:   text,
		TS:     r.clock.Now().UnixMilli(),
		Status: model.StatusSending,
	}
	r.thread.upsert(m)
	r.mu.Unlock()
	r.notify()

	req := model.SendRequest{TempID: tempID, From: m.From, To: m.To, Text: text}
	if err := r.out.Emit(model.EventMessageSend, req); err != nil {
		r.log.Warn().Err(err).Str("temp_id", tempID).Msg("emit message")
	}
	return m, true
}

// OnAcknowledged moves the optimistic entry under its permanent id. If an
// echo already arrived under that id the two are merged.
func (r *Reconciler) OnAcknowledged(ack model.Ack) {
	if ack.TempID == "" || ack.ID == "" {
		return
	}
	r.mu.Lock()
	m, ok := r.thread.findTemp(ack.TempID)
	if !ok {
		r.mu.Unlock()
		r.log.Debug().Str("temp_id", ack.TempID).Msg("ack for unknown message")
		return
	}
	r.thread.remove(m.ID)
	m.ID = ack.ID
	if ack.TS != 0 {
		m.TS = ack.TS
	}
	m.Status, _ = m.Status.Advance(model.StatusSent)
	r.thread.upsert(m)
	r.mu.Unlock()
	r.notify()
}

// OnIncoming stores a live message for the active pair and, when it is
// addressed to self, confirms receipt and reads it.
func (r *Reconciler) OnIncoming(msg model.Message) {
	r.mu.Lock()
	if msg.ID == "" || !msg.Between(r.self, r.peer) {
		r.mu.Unlock()
		r.log.Debug().Str("id", msg.ID).Str("from", msg.From).Str("to", msg.To).Msg("drop message for other thread")
		return
	}
	if !msg.Status.Valid() {
		msg.Status = model.StatusNone
	}
	if msg.From == r.self && msg.Status == model.StatusNone {
		msg.Status = model.StatusSent
	}
	changed := r.thread.upsert(msg)
	r.mu.Unlock()
	if changed {
		r.notify()
	}

	if msg.To != r.self {
		return
	}
	receipt := model.Receipt{ID: msg.ID, By: r.self}
	if err := r.out.Emit(model.EventMessageReceived, receipt); err != nil {
		r.log.Debug().Err(err).Str("id", msg.ID).Msg("emit received")
	}
	if err := r.out.Emit(model.EventMessageRead, receipt); err != nil {
		r.log.Debug().Err(err).Str("id", msg.ID).Msg("emit read")
	}
}

func (r *Reconciler) OnDelivered(rc model.Receipt) { r.advance(rc, model.StatusDelivered) }

func (r *Reconciler) OnRead(rc model.Receipt) { r.advance(rc, model.StatusRead) }

// advance applies a receipt from the peer to a self-authored entry.
func (r *Reconciler) advance(rc model.Receipt, next model.Status) {
	r.mu.Lock()
	m, ok := r.thread.get(rc.ID)
	if !ok || rc.By != r.peer || m.From != r.self {
		r.mu.Unlock()
		return
	}
	changed := r.thread.upsert(model.Message{ID: rc.ID, Status: next})
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// Bind routes the thread events of sub into the reconciler. The returned
// func removes exactly those handlers.
func (r *Reconciler) Bind(sub transport.Subscriber) (unbind func()) {
	type binding struct {
		event string
		id    transport.ListenerID
	}
	bindings := []binding{
		{model.EventMessageNew, sub.On(model.EventMessageNew, handle(r, r.OnIncoming))},
		{model.EventMessageAck, sub.On(model.EventMessageAck, handle(r, r.OnAcknowledged))},
		{model.EventMessageDelivered, sub.On(model.EventMessageDelivered, handle(r, r.OnDelivered))},
		{model.EventMessageRead, sub.On(model.EventMessageRead, handle(r, r.OnRead))},
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, b := range bindings {
				sub.Off(b.event, b.id)
			}
		})
	}
}

func handle[T any](r *Reconciler, fn func(T)) transport.Handler {
	return func(payload json.RawMessage) {
		v, err := transport.Decode[T](payload)
		if err != nil {
			r.log.Debug().Err(err).Msg("drop undecodable event")
			return
		}
		fn(v)
	}
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	fns := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
