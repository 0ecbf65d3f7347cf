// Package session owns everything one user's client shares: the backend
// client, the single real-time connection and the open views.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/mahaj/chat-client/pkg/api"
	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/config"
	"github.com/mahaj/chat-client/pkg/contacts"
	"github.com/mahaj/chat-client/pkg/logging"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/summary"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/rs/zerolog"
)

// Jitter applied to reconnect delays, as the Socket.IO client does.
const reconnectJitter = 0.5

var ErrClosed = errors.New("session closed")

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithDialer replaces the dialer chosen from the configured transport.
func WithDialer(d transport.Dialer) Option {
	return func(s *Session) { s.dial = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Session) { s.httpClient = hc }
}

type Session struct {
	cfg        *config.Config
	self       string
	log        zerolog.Logger
	clock      clock.Clock
	dial       transport.Dialer
	httpClient *http.Client

	api      *api.Client
	manager  *transport.Manager
	contacts *contacts.Directory

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	views    map[*ThreadView]struct{}
	sidebars []func()
	closed   bool
}

func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Session{
		cfg:   cfg,
		log:   zerolog.Nop(),
		clock: clock.New(),
		views: make(map[*ThreadView]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.self = resolveIdentity(cfg, s.log)

	apiOpts := []api.Option{
		api.WithToken(cfg.Token),
		api.WithLogger(logging.Component(s.log, "api")),
	}
	if s.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(s.httpClient))
	}
	if cfg.HTTPTimeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.HTTPTimeout))
	}
	s.api = api.New(cfg.BaseURL, apiOpts...)
	s.contacts = contacts.NewDirectory(s.api, logging.Component(s.log, "contacts"))

	topts := transport.Options{
		URL:    cfg.RealtimeURL(),
		Token:  cfg.Token,
		Events: model.InboundEvents,
		Backoff: transport.Backoff{
			Min:    cfg.ReconnectDelay,
			Max:    cfg.ReconnectDelayMax,
			Jitter: reconnectJitter,
		},
		Logger: s.log,
	}
	if s.dial == nil {
		switch cfg.Transport {
		case config.TransportWebSocket:
			s.dial = transport.DialWebSocket
			topts.Path = cfg.WebSocketPath
		default:
			s.dial = transport.DialSocketIO
		}
	}
	s.manager = transport.NewManager(s.dial, topts)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// resolveIdentity picks the acting user: explicit config, then the token's
// user claim, then the default identity.
func resolveIdentity(cfg *config.Config, log zerolog.Logger) string {
	if cfg.ActingAs != "" {
		return cfg.ActingAs
	}
	if cfg.Token != "" {
		id, err := auth.IdentityFromToken(cfg.Token)
		if err == nil {
			return id
		}
		log.Debug().Err(err).Msg("token carries no identity")
	}
	return config.DefaultActingAs
}

func (s *Session) Self() string { return s.self }

func (s *Session) API() *api.Client { return s.api }

// Conn returns the shared real-time connection, dialing it on first use.
func (s *Session) Conn() (transport.Conn, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return s.manager.Acquire()
}

// Contacts loads the contact list, falling back to the built-in one.
func (s *Session) Contacts(ctx context.Context) ([]model.Contact, error) {
	return s.contacts.Load(ctx)
}

// Sidebar returns a thread summary aggregator kept fresh by message events.
// The first refresh has completed when Sidebar returns; its failure is
// reported through Err.
func (s *Session) Sidebar(ctx context.Context) (*summary.Aggregator, error) {
	conn, err := s.Conn()
	if err != nil {
		return nil, err
	}
	agg := summary.New(s.self, s.api, logging.Component(s.log, "summary"))
	unbind := agg.Bind(s.ctx, conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unbind()
		return nil, ErrClosed
	}
	s.sidebars = append(s.sidebars, unbind)
	s.mu.Unlock()

	_ = agg.Refresh(ctx)
	return agg, nil
}

// Close tears down every view and the shared connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	views := make([]*ThreadView, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	sidebars := s.sidebars
	s.sidebars = nil
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
	for _, unbind := range sidebars {
		unbind()
	}
	s.cancel()
	return s.manager.Close()
}

func (s *Session) track(v *ThreadView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.views[v] = struct{}{}
	return true
}

func (s *Session) forget(v *ThreadView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, v)
}
