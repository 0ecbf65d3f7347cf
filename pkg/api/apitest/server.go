// Package apitest is an in-memory chat backend exposing the HTTP endpoints
// the client consumes.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/model"
)

// Routes accepted by Fail and Requests.
const (
	RouteHistory  = "history"
	RouteMarkRead = "read"
	RouteThreads  = "threads"
	RouteContacts = "contacts"
)

type ReadCall struct {
	Self, Peer string
}

type Server struct {
	srv *httptest.Server
	key []byte

	mu       sync.Mutex
	messages []model.Message
	contacts []model.Contact
	lastRead map[[2]string]int64
	reads    []ReadCall
	fail     map[string]int
	requests map[string]int
	holds    map[string]chan struct{}
}

// NewServer starts the backend. When key is non-nil every request needs a
// bearer token signed with it.
func NewServer(key []byte) *Server {
	s := &Server{
		key:      key,
		lastRead: make(map[[2]string]int64),
		fail:     make(map[string]int),
		requests: make(map[string]int),
		holds:    make(map[string]chan struct{}),
	}

	r := mux.NewRouter()
	r.Use(s.authMiddleware)
	r.HandleFunc("/api/messages/{self}/{peer}", s.history).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{self}/read/{peer}", s.markRead).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/{self}", s.threads).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts", s.listContacts).Methods(http.MethodGet)
	s.srv = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() {
	s.mu.Lock()
	for peer, ch := range s.holds {
		close(ch)
		delete(s.holds, peer)
	}
	s.mu.Unlock()
	s.srv.Close()
}

// AddMessages stores messages as if they had been persisted by the backend.
func (s *Server) AddMessages(msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

func (s *Server) SetContacts(contacts []model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = contacts
}

// Fail makes route answer with code until Fail(route, 0) is called.
func (s *Server) Fail(route string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.fail, route)
		return
	}
	s.fail[route] = code
}

// HoldHistory blocks history responses for peer until release is called.
func (s *Server) HoldHistory(peer string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[peer] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[peer] == ch {
				delete(s.holds, peer)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Server) ReadCalls() []ReadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReadCall(nil), s.reads...)
}

func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.key != nil {
			if _, err := auth.ValidateToken(s.key, r.Header.Get("Authorization")); err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// begin counts the request and reports whether it should fail.
func (s *Server) begin(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	s.requests[route]++
	code := s.fail[route]
	s.mu.Unlock()
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return false
	}
	return true
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, RouteHistory) {
		return
	}
	vars := mux.Vars(r)
	self, peer := vars["self"], vars["peer"]

	s.mu.Lock()
	hold := s.holds[peer]
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	s.mu.Lock()
	var page []model.Message
	for _, m := range s.messages {
		if m.Between(self, peer) {
			m.Status, m.TempID = model.StatusNone, ""
			page = append(page, m)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(page, func(i, j int) bool { return page[i].TS < page[j].TS })
	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	writeJSON(w, page)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, RouteMarkRead) {
		return
	}
	vars := mux.Vars(r)
	self, peer := vars["self"], vars["peer"]

	s.mu.Lock()
	s.reads = append(s.reads, ReadCall{Self: self, Peer: peer})
	for _, m := range s.messages {
		if m.From == peer && m.To == self && m.TS > s.lastRead[[2]string{self, peer}] {
			s.lastRead[[2]string{self, peer}] = m.TS
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// threads derives one summary per peer: the latest message and the number of
// peer messages newer than the last read mark.
func (s *Server) threads(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, RouteThreads) {
		return
	}
	self := mux.Vars(r)["self"]

	s.mu.Lock()
	names := make(map[string]string, len(s.contacts))
	for _, c := range s.contacts {
		names[c.ID] = c.Name
	}
	byPeer := make(map[string]*model.ThreadSummary)
	for _, m := range s.messages {
		var peer string
		switch self {
		case m.From:
			peer = m.To
		case m.To:
			peer = m.From
		default:
			continue
		}
		sum := byPeer[peer]
		if sum == nil {
			name := names[peer]
			if name == "" {
				name = peer
			}
			sum = &model.ThreadSummary{OtherID: peer, OtherName: name}
			byPeer[peer] = sum
		}
		if m.TS >= sum.LastTS {
			sum.LastTS, sum.LastText = m.TS, m.Text
		}
		if m.From == peer && m.TS > s.lastRead[[2]string{self, peer}] {
			sum.Unread++
		}
	}
	s.mu.Unlock()

	out := make([]model.ThreadSummary, 0, len(byPeer))
	for _, sum := range byPeer {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTS > out[j].LastTS })
	writeJSON(w, out)
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, RouteContacts) {
		return
	}
	s.mu.Lock()
	contacts := append([]model.Contact{}, s.contacts...)
	s.mu.Unlock()
	writeJSON(w, contacts)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
