package transport

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// socketIOConn is a Conn backed by a Socket.IO client socket. The client
// library owns reconnection and buffers emits made while disconnected.
type socketIOConn struct {
	*Registry

	mu        sync.RWMutex
	sock      *socket.Socket
	connected atomic.Bool
}

// DialSocketIO opens with long-polling, upgrades to websocket, and
// reconnects forever using opts.Backoff.
func DialSocketIO(opts Options) (Conn, error) {
	log := opts.Logger.With().Str("component", "transport").Str("url", opts.URL).Logger()

	o := socket.DefaultOptions()
	o.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	o.SetReconnection(true)
	o.SetReconnectionAttempts(math.Inf(1))
	o.SetReconnectionDelay(float64(opts.Backoff.Min.Milliseconds()))
	o.SetReconnectionDelayMax(float64(opts.Backoff.Max.Milliseconds()))
	if opts.Path != "" {
		o.SetPath(opts.Path)
	}
	if opts.Token != "" {
		o.SetAuth(map[string]interface{}{"token": opts.Token})
	}

	sock, err := socket.Connect(opts.URL, o)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &socketIOConn{Registry: NewRegistry(defaultQueueSize), sock: sock}

	sock.On(types.EventName("connect"), func(args ...any) {
		c.connected.Store(true)
		log.Info().Str("sid", string(sock.Id())).Msg("connected")
		c.Dispatch(EventConnect, nil)
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.connected.Store(false)
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		log.Info().Str("reason", reason).Msg("disconnected")
		raw, _ := json.Marshal(reason)
		c.Dispatch(EventDisconnect, raw)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			log.Debug().Interface("error", args[0]).Msg("connect error")
		}
	})

	for _, event := range opts.Events {
		ev := event
		sock.On(types.EventName(ev), func(args ...any) {
			var raw json.RawMessage
			if len(args) > 0 {
				b, err := json.Marshal(args[0])
				if err != nil {
					log.Debug().Err(err).Str("event", ev).Msg("drop undecodable payload")
					return
				}
				raw = b
			}
			c.Dispatch(ev, raw)
		})
	}

	return c, nil
}

func (c *socketIOConn) Emit(event string, payload any) error {
	c.mu.RLock()
	sock := c.sock
	c.mu.RUnlock()
	if sock == nil {
		return ErrClosed
	}
	data, err := toWire(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	sock.Emit(event, data)
	return nil
}

func (c *socketIOConn) Connected() bool {
	c.mu.RLock()
	sock := c.sock
	c.mu.RUnlock()
	return sock != nil && (c.connected.Load() || sock.Connected())
}

func (c *socketIOConn) Close() error {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()
	if sock != nil {
		sock.Disconnect()
	}
	c.connected.Store(false)
	c.Registry.Close()
	return nil
}

// toWire converts a typed payload into the generic JSON shape the Socket.IO
// encoder expects.
func toWire(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
