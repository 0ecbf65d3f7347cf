package transporttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/transport"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

// SocketIOServer is a Socket.IO server on /socket.io/. It records the named
// inbound events as frames and can broadcast events to every client.
type SocketIOServer struct {
	io  *socket.Server
	srv *httptest.Server
	key []byte

	mu    sync.Mutex
	users map[socket.SocketId]string
	dials int

	frames chan transport.Frame
}

// NewSocketIOServer starts a server recording the given client events. When
// key is non-nil, a socket whose auth token does not validate is
// disconnected immediately.
func NewSocketIOServer(key []byte, events ...string) *SocketIOServer {
	s := &SocketIOServer{
		io:     socket.NewServer(nil, nil),
		key:    key,
		users:  make(map[socket.SocketId]string),
		frames: make(chan transport.Frame, 1024),
	}
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.accept(client, events)
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.io.ServeHandler(nil))
	s.srv = httptest.NewServer(mux)
	return s
}

func (s *SocketIOServer) accept(client *socket.Socket, events []string) {
	userID := ""
	if s.key != nil {
		token, _ := client.Handshake().Auth["token"].(string)
		claims, err := auth.ValidateToken(s.key, token)
		if err != nil {
			client.Disconnect(true)
			return
		}
		userID = claims.UserID
	}

	id := client.Id()
	s.mu.Lock()
	s.users[id] = userID
	s.dials++
	s.mu.Unlock()

	client.On("disconnect", func(...any) {
		s.mu.Lock()
		delete(s.users, id)
		s.mu.Unlock()
	})

	for _, event := range events {
		ev := event
		client.On(ev, func(args ...any) {
			var data json.RawMessage
			if len(args) > 0 {
				b, err := json.Marshal(args[0])
				if err != nil {
					return
				}
				data = b
			}
			select {
			case s.frames <- transport.Frame{Event: ev, Data: data}:
			default:
			}
		})
	}
}

// URL is the http origin of the server.
func (s *SocketIOServer) URL() string { return s.srv.URL }

// Push broadcasts an event to every connected client.
func (s *SocketIOServer) Push(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	s.io.Emit(event, data)
	return nil
}

// Users returns the token identities of live sockets.
func (s *SocketIOServer) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// Dials returns how many sockets were accepted in total.
func (s *SocketIOServer) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Next waits for the next recorded event with the given name, skipping
// others.
func (s *SocketIOServer) Next(event string, timeout time.Duration) (transport.Frame, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-s.frames:
			if f.Event == event {
				return f, true
			}
		case <-deadline:
			return transport.Frame{}, false
		}
	}
}

func (s *SocketIOServer) Close() {
	s.io.Close(nil)
	s.srv.Close()
}
