// Package api is the client for the chat backend's HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/rs/zerolog"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout *time.Duration
	log     zerolog.Logger
}

type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request. Zero keeps requests unbounded, so only the
// caller's context can cancel them. It applies to a copy of the HTTP client,
// never to one passed through WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = &d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil {
		hc := *c.http
		hc.Timeout = *c.timeout
		c.http = &hc
	}
	return c
}

// History fetches the latest page of messages between self and peer, oldest
// first.
func (c *Client) History(ctx context.Context, self, peer string, limit int) ([]model.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+seg(self)+"/"+seg(peer), q, &out); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return out, nil
}

// MarkRead clears the unread counter self holds for the thread with peer.
func (c *Client) MarkRead(ctx context.Context, self, peer string) error {
	if err := c.do(ctx, http.MethodPost, "/api/threads/"+seg(self)+"/read/"+seg(peer), nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Threads fetches the conversation summaries for self.
func (c *Client) Threads(ctx context.Context, self string) ([]model.ThreadSummary, error) {
	var out []model.ThreadSummary
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+seg(self), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch threads: %w", err)
	}
	return out, nil
}

func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	if err := c.do(ctx, http.MethodGet, "/api/contacts", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return out, nil
}

func seg(s string) string { return url.PathEscape(s) }

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bearer := auth.BearerHeader(c.token); bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
