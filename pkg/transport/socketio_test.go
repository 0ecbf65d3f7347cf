package transport_test

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/transport"
	"github.com/mahaj/chat-client/pkg/transport/transporttest"
	"github.com/stretchr/testify/require"
)

var clientEvents = []string{model.EventJoin, model.EventMessageSend, model.EventMessageReceived, model.EventTyping, model.EventMessageRead}

func TestSocketIORoundTrip(t *testing.T) {
	t.Parallel()

	srv := transporttest.NewSocketIOServer(nil, clientEvents...)
	defer srv.Close()

	conn, err := transport.DialSocketIO(transport.Options{URL: srv.URL(), Events: model.InboundEvents, Backoff: fastBackoff})
	require.NoError(t, err)
	defer conn.Close()

	var connects atomic.Int32
	conn.On(transport.EventConnect, func(json.RawMessage) {
		connects.Add(1)
		_ = conn.Emit(model.EventJoin, model.JoinRequest{UserID: "me", OtherID: "nasir"})
	})
	acks := make(chan model.Ack, 1)
	conn.On(model.EventMessageAck, func(p json.RawMessage) {
		ack, _ := transport.Decode[model.Ack](p)
		acks <- ack
	})
	incoming := make(chan model.Message, 1)
	conn.On(model.EventMessageNew, func(p json.RawMessage) {
		m, _ := transport.Decode[model.Message](p)
		incoming <- m
	})

	f, ok := srv.Next(model.EventJoin, 5*time.Second)
	require.True(t, ok)
	var join model.JoinRequest
	require.NoError(t, json.Unmarshal(f.Data, &join))
	require.Equal(t, model.JoinRequest{UserID: "me", OtherID: "nasir"}, join)
	require.True(t, conn.Connected())
	require.Equal(t, int32(1), connects.Load())

	require.NoError(t, conn.Emit(model.EventMessageSend, model.SendRequest{TempID: "temp-1", From: "me", To: "nasir", Text: "hi"}))
	f, ok = srv.Next(model.EventMessageSend, 5*time.Second)
	require.True(t, ok)
	var req model.SendRequest
	require.NoError(t, json.Unmarshal(f.Data, &req))
	require.Equal(t, "temp-1", req.TempID)
	require.Equal(t, "hi", req.Text)

	require.NoError(t, srv.Push(model.EventMessageAck, model.Ack{TempID: "temp-1", ID: "42", TS: 1000}))
	select {
	case ack := <-acks:
		require.Equal(t, model.Ack{TempID: "temp-1", ID: "42", TS: 1000}, ack)
	case <-time.After(5 * time.Second):
		t.Fatal("ack not dispatched")
	}

	require.NoError(t, srv.Push(model.EventMessageNew, model.Message{ID: "43", From: "nasir", To: "me", Text: "hey", TS: 2000}))
	select {
	case m := <-incoming:
		require.Equal(t, "43", m.ID)
		require.Equal(t, "hey", m.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("message not dispatched")
	}
}

func TestSocketIOSendsAuthToken(t *testing.T) {
	t.Parallel()

	key := []byte("gateway-key")
	srv := transporttest.NewSocketIOServer(key, clientEvents...)
	defer srv.Close()

	token, err := auth.GenerateToken(key, "samin", time.Hour)
	require.NoError(t, err)

	conn, err := transport.DialSocketIO(transport.Options{URL: srv.URL(), Token: token, Events: model.InboundEvents, Backoff: fastBackoff})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		users := srv.Users()
		return len(users) == 1 && users[0] == "samin"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSocketIOEmitAfterClose(t *testing.T) {
	t.Parallel()

	srv := transporttest.NewSocketIOServer(nil)
	defer srv.Close()

	conn, err := transport.DialSocketIO(transport.Options{URL: srv.URL(), Backoff: fastBackoff})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Emit(model.EventTyping, model.Typing{}), transport.ErrClosed)
	require.False(t, conn.Connected())
}
