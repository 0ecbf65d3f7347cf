package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mahaj/chat-client/pkg/api"
	"github.com/mahaj/chat-client/pkg/api/apitest"
	"github.com/mahaj/chat-client/pkg/auth"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryReturnsLatestPageOldestFirst(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	srv.AddMessages(
		model.Message{ID: "3", From: "nasir", To: "me", Text: "c", TS: 3000},
		model.Message{ID: "1", From: "me", To: "nasir", Text: "a", TS: 1000},
		model.Message{ID: "2", From: "nasir", To: "me", Text: "b", TS: 2000},
		model.Message{ID: "9", From: "samin", To: "me", Text: "other", TS: 1500},
	)

	c := api.New(srv.URL())
	msgs, err := c.History(context.Background(), "me", "nasir", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].ID)
	assert.Equal(t, "3", msgs[1].ID)
}

func TestMarkReadClearsUnread(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	srv.SetContacts([]model.Contact{{ID: "nasir", Name: "Nasir"}})
	srv.AddMessages(
		model.Message{ID: "1", From: "nasir", To: "me", Text: "hi", TS: 1000},
		model.Message{ID: "2", From: "nasir", To: "me", Text: "there", TS: 2000},
	)

	c := api.New(srv.URL())
	ctx := context.Background()

	threads, err := c.Threads(ctx, "me")
	require.NoError(t, err)
	require.Equal(t, []model.ThreadSummary{{OtherID: "nasir", OtherName: "Nasir", LastText: "there", LastTS: 2000, Unread: 2}}, threads)

	require.NoError(t, c.MarkRead(ctx, "me", "nasir"))
	assert.Equal(t, []apitest.ReadCall{{Self: "me", Peer: "nasir"}}, srv.ReadCalls())

	threads, err = c.Threads(ctx, "me")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Zero(t, threads[0].Unread)
}

func TestContacts(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	want := []model.Contact{{ID: "nasir", Name: "Nasir"}, {ID: "samin", Name: "Samin"}}
	srv.SetContacts(want)

	got, err := api.New(srv.URL()).Contacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNon2xxIsStatusError(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	srv.Fail(apitest.RouteThreads, http.StatusServiceUnavailable)

	_, err := api.New(srv.URL()).Threads(context.Background(), "me")
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "/api/threads/me", se.Path)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	srv := apitest.NewServer(key)
	defer srv.Close()

	_, err := api.New(srv.URL()).Contacts(context.Background())
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	token, err := auth.GenerateToken(key, "me", time.Hour)
	require.NoError(t, err)
	_, err = api.New(srv.URL(), api.WithToken(token)).Contacts(context.Background())
	require.NoError(t, err)
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	t.Parallel()

	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		_, _ = w.Write([]byte("[]"))
	}))
	defer ts.Close()

	_, err := api.New(ts.URL+"/").History(context.Background(), "me", "a/b", 0)
	require.NoError(t, err)
	assert.Equal(t, "/api/messages/me/a%2Fb", got)
}

func TestMalformedBodyIsDecodeError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer ts.Close()

	_, err := api.New(ts.URL).Contacts(context.Background())
	require.Error(t, err)
	var se *api.StatusError
	assert.False(t, errors.As(err, &se))
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	release := srv.HoldHistory("nasir")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := api.New(srv.URL()).History(ctx, "me", "nasir", 10)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeoutAppliesToCopyInAnyOrder(t *testing.T) {
	t.Parallel()

	srv := apitest.NewServer(nil)
	defer srv.Close()
	release := srv.HoldHistory("nasir")
	defer release()

	hc := &http.Client{}
	for _, opts := range [][]api.Option{
		{api.WithHTTPClient(hc), api.WithTimeout(50 * time.Millisecond)},
		{api.WithTimeout(50 * time.Millisecond), api.WithHTTPClient(hc)},
	} {
		start := time.Now()
		_, err := api.New(srv.URL(), opts...).History(context.Background(), "me", "nasir", 10)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	}
	assert.Zero(t, hc.Timeout, "caller's client is left untouched")
}
