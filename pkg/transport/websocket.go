package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the gateway.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the gateway.
	maxFrameSize = 64 << 10

	defaultWebSocketPath = "/ws"
)

// Frame is the JSON envelope exchanged with a plain websocket gateway.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsConn is a Conn over a gorilla websocket. It redials forever with backoff
// and keeps outbound frames queued across reconnects.
type wsConn struct {
	*Registry

	url    string
	header http.Header
	opts   Options
	log    zerolog.Logger
	dialer *websocket.Dialer

	send      chan []byte
	connected atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// DialWebSocket starts a background connection to opts.URL + opts.Path.
// http(s) origins are mapped to ws(s).
func DialWebSocket(opts Options) (Conn, error) {
	target, err := websocketURL(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if bearer := auth.BearerHeader(opts.Token); bearer != "" {
		header.Set("Authorization", bearer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		Registry: NewRegistry(defaultQueueSize),
		url:      target,
		header:   header,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "transport").Str("url", target).Logger(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		send:     make(chan []byte, defaultQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func websocketURL(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", origin, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if path == "" {
		path = defaultWebSocketPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

func (c *wsConn) run() {
	defer close(c.done)
	attempt := 0
	for {
		conn, _, err := c.dialer.DialContext(c.ctx, c.url, c.header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			wait := c.opts.Backoff.Duration(attempt)
			attempt++
			c.log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("dial failed")
			if !c.sleep(wait) {
				return
			}
			continue
		}

		attempt = 0
		c.mu.Lock()
		if c.ctx.Err() != nil {
			// Close ran between the dial and here and saw no conn to hang up.
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		c.log.Info().Msg("connected")
		c.Dispatch(EventConnect, nil)

		reason := c.serve(conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		if c.ctx.Err() != nil {
			return
		}
		c.log.Info().Str("reason", reason).Msg("disconnected")
		raw, _ := json.Marshal(reason)
		c.Dispatch(EventDisconnect, raw)

		wait := c.opts.Backoff.Duration(attempt)
		attempt++
		if !c.sleep(wait) {
			return
		}
	}
}

func (c *wsConn) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// serve pumps frames until the connection fails and returns the reason.
func (c *wsConn) serve(conn *websocket.Conn) string {
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(conn, stop)
	}()

	reason := c.readPump(conn)
	close(stop)
	conn.Close()
	<-writerDone
	return reason
}

// readPump dispatches inbound frames until the connection fails.
func (c *wsConn) readPump(conn *websocket.Conn) string {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read")
			}
			return err.Error()
		}
		var f Frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			c.log.Debug().Bytes("frame", message).Msg("drop malformed frame")
			continue
		}
		if !c.Dispatch(f.Event, f.Data) {
			return "closed"
		}
	}
}

// writePump writes queued frames and keepalive pings.
func (c *wsConn) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case message := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("write")
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) Emit(event string, payload any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	f := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		f.Data = data
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *wsConn) Connected() bool {
	return c.connected.Load()
}

func (c *wsConn) Close() error {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
	}
	c.mu.Unlock()
	c.Registry.Close()
	<-c.done
	return nil
}
