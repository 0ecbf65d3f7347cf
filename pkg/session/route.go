package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mahaj/chat-client/pkg/config"
)

var ErrBadRoute = errors.New("route must look like /chat/{peer}")

// Route addresses one thread view: the peer and, optionally, the identity
// viewing it.
type Route struct {
	Peer string
	Self string
}

// ParseRoute accepts "/chat/{peer}?as={self}", a full URL with that path, or
// a bare peer id. Self defaults to "me".
func ParseRoute(raw string) (Route, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Route{}, ErrBadRoute
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Route{}, fmt.Errorf("parse route %q: %w", raw, err)
	}

	r := Route{Self: config.DefaultActingAs}
	if as := strings.TrimSpace(u.Query().Get("as")); as != "" {
		r.Self = as
	}

	path := strings.Trim(u.Path, "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && parts[0] != "chat" && !strings.HasPrefix(raw, "/"):
		r.Peer = parts[0]
	case len(parts) == 2 && parts[0] == "chat" && parts[1] != "":
		r.Peer = parts[1]
	default:
		return Route{}, fmt.Errorf("%w: %q", ErrBadRoute, raw)
	}
	return r, nil
}

func (r Route) String() string {
	s := "/chat/" + url.PathEscape(r.Peer)
	if r.Self != "" && r.Self != config.DefaultActingAs {
		s += "?as=" + url.QueryEscape(r.Self)
	}
	return s
}
