package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mahaj/chat-client/pkg/logging"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/reconcile"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/mahaj/chat-client/pkg/typing"
	"github.com/rs/zerolog"
)

// ThreadView is one open conversation: the reconciled message list, the
// draft with its typing signal, and the peer's typing state.
type ThreadView struct {
	s    *Session
	conn transport.Conn
	rec  *reconcile.Reconciler
	log  zerolog.Logger

	mu        sync.Mutex
	peer      string
	draft     string
	deb       *typing.Debouncer
	ind       *typing.Indicator
	unbindInd func()
	loadErr   error
	listeners []func()
	unbinds   []func()
	closed    bool
}

// OpenThread opens the thread with peer on the shared connection, announces
// it to the backend and loads the history page. A history failure leaves the
// view empty and is reported by LoadErr.
func (s *Session) OpenThread(ctx context.Context, peer string) (*ThreadView, error) {
	conn, err := s.Conn()
	if err != nil {
		return nil, err
	}
	log := logging.Component(s.log, "thread")
	v := &ThreadView{
		s:    s,
		conn: conn,
		log:  log,
		peer: peer,
	}
	v.rec = reconcile.New(s.self, peer, s.api, conn,
		reconcile.WithClock(s.clock),
		reconcile.WithLogger(log),
		reconcile.WithHistoryLimit(s.cfg.HistoryLimit),
	)
	v.rec.OnChange(v.notify)
	v.resetTyping(peer)

	if !s.track(v) {
		v.release()
		return nil, ErrClosed
	}

	// Rooms do not survive a reconnect on the backend, so join again on
	// every connect.
	connectID := conn.On(transport.EventConnect, func(json.RawMessage) { v.join() })
	v.unbinds = append(v.unbinds,
		v.rec.Bind(conn),
		func() { conn.Off(transport.EventConnect, connectID) },
	)
	if conn.Connected() {
		v.join()
	}

	v.load(ctx)
	return v, nil
}

func (v *ThreadView) Self() string { return v.s.self }

func (v *ThreadView) Peer() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.peer
}

func (v *ThreadView) Messages() []model.Message { return v.rec.Messages() }

func (v *ThreadView) PeerTyping() bool {
	v.mu.Lock()
	ind := v.ind
	v.mu.Unlock()
	return ind.Typing()
}

// LoadErr returns the error of the latest history load, if any.
func (v *ThreadView) LoadErr() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

func (v *ThreadView) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// SetDraft updates the input text. Every change counts as a keystroke for
// the typing signal.
func (v *ThreadView) SetDraft(text string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.draft = text
	deb := v.deb
	v.mu.Unlock()
	deb.Changed()
}

// Submit sends the draft. A blank draft sends nothing and is kept as is.
func (v *ThreadView) Submit() (model.Message, bool) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.Message{}, false
	}
	text, deb := v.draft, v.deb
	v.mu.Unlock()

	m, ok := v.rec.Send(text)
	if !ok {
		return model.Message{}, false
	}
	v.mu.Lock()
	v.draft = ""
	v.mu.Unlock()
	deb.Flush()
	return m, true
}

// Switch moves the view to another peer, discarding the current thread.
func (v *ThreadView) Switch(ctx context.Context, peer string) {
	v.mu.Lock()
	if v.closed || peer == v.peer {
		v.mu.Unlock()
		return
	}
	v.peer = peer
	v.draft = ""
	v.mu.Unlock()

	v.rec.Switch(peer)
	v.resetTyping(peer)
	v.join()
	v.load(ctx)
}

// OnChange registers fn to run after the messages or the peer typing state
// change.
func (v *ThreadView) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Close detaches the view from the connection. The connection itself stays
// open for the other views of the session.
func (v *ThreadView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.release()
	v.s.forget(v)
}

func (v *ThreadView) release() {
	v.mu.Lock()
	unbinds := append(v.unbinds, v.unbindInd)
	v.unbinds, v.unbindInd = nil, nil
	deb := v.deb
	v.mu.Unlock()

	deb.Flush()
	for _, unbind := range unbinds {
		if unbind != nil {
			unbind()
		}
	}
}

// resetTyping replaces the debouncer and indicator for a new peer, ending
// any open typing burst in the old room first.
func (v *ThreadView) resetTyping(peer string) {
	self := v.s.self
	deb := typing.NewDebouncer(v.conn, self, peer,
		typing.WithClock(v.s.clock),
		typing.WithDelay(v.s.cfg.TypingDelay),
		typing.WithLogger(v.log),
	)
	ind := typing.NewIndicator(self, peer)
	ind.OnChange(func(bool) { v.notify() })
	unbind := ind.Bind(v.conn)

	v.mu.Lock()
	oldDeb, oldUnbind := v.deb, v.unbindInd
	v.deb, v.ind, v.unbindInd = deb, ind, unbind
	v.mu.Unlock()

	if oldDeb != nil {
		oldDeb.Flush()
	}
	if oldUnbind != nil {
		oldUnbind()
	}
}

func (v *ThreadView) join() {
	v.mu.Lock()
	peer, closed := v.peer, v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	if err := v.conn.Emit(model.EventJoin, model.JoinRequest{UserID: v.s.self, OtherID: peer}); err != nil {
		v.log.Debug().Err(err).Str("peer", peer).Msg("emit join")
	}
}

func (v *ThreadView) load(ctx context.Context) {
	err := v.rec.LoadHistory(ctx)
	if errors.Is(err, reconcile.ErrStaleThread) {
		return
	}
	v.mu.Lock()
	v.loadErr = err
	v.mu.Unlock()
	v.notify()
}

func (v *ThreadView) notify() {
	v.mu.Lock()
	fns := append([]func(){}, v.listeners...)
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
