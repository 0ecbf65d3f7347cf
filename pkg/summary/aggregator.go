// Package summary maintains the recent conversations sidebar.
package summary

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/rs/zerolog"
)

// Source fetches the thread summaries of a user. *api.Client satisfies it.
type Source interface {
	Threads(ctx context.Context, self string) ([]model.ThreadSummary, error)
}

// refreshEvents trigger a refetch of the whole list.
var refreshEvents = []string{
	model.EventMessageNew,
	model.EventMessageDelivered,
	model.EventMessageRead,
}

// Aggregator holds the thread summaries for self. Every refresh replaces
// the list wholesale; a failed refresh keeps the previous one.
type Aggregator struct {
	self string
	src  Source
	log  zerolog.Logger

	mu        sync.Mutex
	threads   []model.ThreadSummary
	err       error
	inflight  int
	issued    uint64
	applied   uint64
	listeners []func()
}

func New(self string, src Source, log zerolog.Logger) *Aggregator {
	return &Aggregator{self: self, src: src, log: log}
}

// Refresh refetches the list. A response older than one already applied is
// dropped, so overlapping refreshes never roll the list back.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.issued++
	seq := a.issued
	a.inflight++
	a.mu.Unlock()
	a.notify()

	threads, err := a.src.Threads(ctx, a.self)

	a.mu.Lock()
	a.inflight--
	if seq > a.applied {
		if err == nil {
			a.applied = seq
			a.threads = threads
		}
		a.err = err
	}
	a.mu.Unlock()
	a.notify()

	if err != nil {
		a.log.Warn().Err(err).Msg("refresh threads")
	}
	return err
}

// Threads returns a copy of the current list.
func (a *Aggregator) Threads() []model.ThreadSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ThreadSummary(nil), a.threads...)
}

// Loading reports whether any refresh is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight > 0
}

// Err returns the error of the latest refresh, nil after a success.
func (a *Aggregator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Aggregator) OnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Bind refetches on every message event seen on sub, one independent
// request per event. Requests use ctx; unbind stops new ones.
func (a *Aggregator) Bind(ctx context.Context, sub transport.Subscriber) (unbind func()) {
	ids := make([]transport.ListenerID, len(refreshEvents))
	for i, event := range refreshEvents {
		ids[i] = sub.On(event, func(json.RawMessage) {
			go func() { _ = a.Refresh(ctx) }()
		})
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i, event := range refreshEvents {
				sub.Off(event, ids[i])
			}
		})
	}
}

func (a *Aggregator) notify() {
	a.mu.Lock()
	fns := append([]func(){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
