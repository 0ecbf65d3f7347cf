package contacts

import (
	"context"
	"net/http"
	"testing"

	"github.com/mahaj/chat-client/pkg/api"
	"github.com/mahaj/chat-client/pkg/api/apitest"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBackend(t *testing.T) {
	srv := apitest.NewServer(nil)
	defer srv.Close()
	srv.SetContacts([]model.Contact{{ID: "rafi", Name: "Rafi"}})

	got, err := NewDirectory(api.New(srv.URL()), zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Contact{{ID: "rafi", Name: "Rafi"}}, got)
}

func TestLoadFailureReturnsFallback(t *testing.T) {
	srv := apitest.NewServer(nil)
	defer srv.Close()
	srv.Fail(apitest.RouteContacts, http.StatusBadGateway)

	got, err := NewDirectory(api.New(srv.URL()), zerolog.Nop()).Load(context.Background())
	require.Error(t, err)
	require.Equal(t, Fallback, got)

	got[0].Name = "changed"
	require.Equal(t, "Nasir", Fallback[0].Name)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "You", DisplayName("me"))
	require.Equal(t, "Tauhid", DisplayName("tauhid"))
	require.Equal(t, "stranger", DisplayName("stranger"))
}
