package transporttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is a websocket server speaking transport.Frame JSON. It records
// every inbound frame and can push frames to, or drop, connected clients.
type Gateway struct {
	srv *httptest.Server
	key []byte

	mu      sync.Mutex
	clients map[*gatewayClient]string
	dials   int

	frames chan transport.Frame
}

type gatewayClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewGateway starts a gateway on /ws. When key is non-nil, connections must
// carry a bearer token signed with it.
func NewGateway(key []byte) *Gateway {
	g := &Gateway{
		key:     key,
		clients: make(map[*gatewayClient]string),
		frames:  make(chan transport.Frame, 1024),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWs)
	g.srv = httptest.NewServer(mux)
	return g
}

// URL is the http origin of the gateway.
func (g *Gateway) URL() string { return g.srv.URL }

func (g *Gateway) serveWs(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if g.key != nil {
		claims, err := auth.ValidateToken(g.key, r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &gatewayClient{conn: conn, send: make(chan []byte, 256)}

	g.mu.Lock()
	g.clients[c] = userID
	g.dials++
	g.mu.Unlock()

	go g.writePump(c)
	g.readPump(c)
}

func (g *Gateway) readPump(c *gatewayClient) {
	defer g.drop(c)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f transport.Frame
		if err := json.Unmarshal(message, &f); err != nil {
			continue
		}
		select {
		case g.frames <- f:
		default:
		}
	}
}

func (g *Gateway) writePump(c *gatewayClient) {
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *Gateway) drop(c *gatewayClient) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Push sends an event to every connected client.
func (g *Gateway) Push(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(transport.Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.clients {
		select {
		case c.send <- b:
		default:
		}
	}
	return nil
}

// DropAll closes every client connection from the server side.
func (g *Gateway) DropAll() {
	g.mu.Lock()
	clients := make([]*gatewayClient, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		g.drop(c)
	}
}

// Clients returns the number of live connections.
func (g *Gateway) Clients() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Users returns the token identities of live connections.
func (g *Gateway) Users() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.clients))
	for _, u := range g.clients {
		out = append(out, u)
	}
	return out
}

// Dials returns how many connections were accepted in total.
func (g *Gateway) Dials() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dials
}

// Next waits for the next inbound frame with the given event name, skipping
// others.
func (g *Gateway) Next(event string, timeout time.Duration) (transport.Frame, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-g.frames:
			if f.Event == event {
				return f, true
			}
		case <-deadline:
			return transport.Frame{}, false
		}
	}
}

func (g *Gateway) Close() {
	g.DropAll()
	g.srv.Close()
}
