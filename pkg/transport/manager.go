package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Options configure a dialer.
type Options struct {
	// URL is the backend origin, e.g. https://chat.example.com.
	URL string
	// Path overrides the endpoint path. Dialer specific default when empty.
	Path string
	// Token is sent as a bearer credential when set.
	Token string
	// Events lists the backend event names forwarded to handlers.
	Events []string
	// Backoff is the reconnect policy. Reconnects never give up.
	Backoff Backoff
	// Header is added to the handshake request where the dialer supports it.
	Header http.Header
	Logger zerolog.Logger
}

// Dialer creates a connection. It must return immediately and connect in the
// background, reconnecting on loss until the Conn is closed.
type Dialer func(opts Options) (Conn, error)

// Manager owns the single connection shared by every view of a session.
type Manager struct {
	mu     sync.Mutex
	dial   Dialer
	opts   Options
	conn   Conn
	closed bool
}

func NewManager(dial Dialer, opts Options) *Manager {
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	return &Manager{dial: dial, opts: opts}
}

// Acquire returns the shared connection, dialing it on first use.
func (m *Manager) Acquire() (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.conn != nil {
		return m.conn, nil
	}
	conn, err := m.dial(m.opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.opts.URL, err)
	}
	m.conn = conn
	return conn, nil
}

// Close tears the shared connection down. Acquire fails afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
