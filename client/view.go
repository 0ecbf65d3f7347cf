package main

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/chat-client/pkg/contacts"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/snowflake"
	"github.com/microcosm-cc/bluemonday"
)

const (
	ansiBlue  = "\x1b[34m"
	ansiReset = "\x1b[0m"
)

// Peer text is untrusted; markup is stripped before it reaches the terminal.
var textPolicy = bluemonday.StrictPolicy()

func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// ticks renders the delivery state of a self-authored message.
func ticks(s model.Status) string {
	switch s {
	case model.StatusRead:
		return ansiBlue + "✓✓" + ansiReset
	case model.StatusDelivered:
		return "✓✓"
	case model.StatusSent:
		return "✓"
	default:
		return "…"
	}
}

func renderContact(c model.Contact) string {
	return fmt.Sprintf("%-10s %s", c.ID, sanitize(c.Name))
}

func joinContacts(list []model.Contact) string {
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, sanitize(c.Name))
	}
	return strings.Join(names, ", ")
}

func renderThread(t model.ThreadSummary) string {
	name := sanitize(t.OtherName)
	if name == "" {
		name = contacts.DisplayName(t.OtherID)
	}
	line := fmt.Sprintf("%-10s %s", name, sanitize(t.LastText))
	if t.Unread > 0 {
		line += fmt.Sprintf(" (%d)", t.Unread)
	}
	return line
}

func printThreads(w io.Writer, threads []model.ThreadSummary) {
	if len(threads) == 0 {
		fmt.Fprintln(w, "no conversations yet")
		return
	}
	for _, t := range threads {
		fmt.Fprintln(w, renderThread(t))
	}
}

func renderMessage(m model.Message, self string) string {
	at := time.UnixMilli(m.TS).Format("15:04")
	text := sanitize(m.Text)
	if m.From == self {
		return fmt.Sprintf("[%s] you: %s %s", at, text, ticks(m.Status))
	}
	return fmt.Sprintf("[%s] %s: %s", at, contacts.DisplayName(m.From), text)
}

// printer writes only what changed between two snapshots of a thread: new
// messages, tick changes of own messages and the peer typing state.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	self   string
	seen   map[string]model.Status
	typing bool
}

func newPrinter(w io.Writer, self string) *printer {
	return &printer{w: w, self: self, seen: make(map[string]model.Status)}
}

func (p *printer) Header(peer string, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = typing
	fmt.Fprintf(p.w, "== %s (%s) ==\n", contacts.DisplayName(peer), presence(typing))
}

func (p *printer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[string]model.Status)
	p.typing = false
}

func (p *printer) Sync(msgs []model.Message, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		prev, ok := p.seen[m.ID]
		if !ok && m.TempID != "" && !snowflake.IsTemp(m.ID) {
			// Acknowledged send: already printed under its temporary id.
			prev, ok = p.seen[m.TempID]
			delete(p.seen, m.TempID)
		}
		p.seen[m.ID] = m.Status
		switch {
		case !ok:
			fmt.Fprintln(p.w, renderMessage(m, p.self))
		case prev != m.Status && m.From == p.self:
			fmt.Fprintf(p.w, "  %s %s\n", truncate(sanitize(m.Text), 24), ticks(m.Status))
		}
	}
	if typing != p.typing {
		p.typing = typing
		fmt.Fprintf(p.w, "  (%s)\n", presence(typing))
	}
}

func presence(typing bool) string {
	if typing {
		return "typing..."
	}
	return "online"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
