// Package contacts resolves who the user can talk to and how to name them.
package contacts

import (
	"context"

	"github.com/mahaj/chat-client/pkg/model"
	"github.com/rs/zerolog"
)

// Fallback is shown when the backend contact list cannot be fetched.
var Fallback = []model.Contact{
	{ID: "nasir", Name: "Nasir"},
	{ID: "samin", Name: "Samin"},
	{ID: "jamil", Name: "Jamil"},
	{ID: "tauhid", Name: "Tauhid"},
}

var names = map[string]string{
	"nasir":  "Nasir",
	"samin":  "Samin",
	"jamil":  "Jamil",
	"tauhid": "Tauhid",
	"me":     "You",
}

// Source fetches the contact list. *api.Client satisfies it.
type Source interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
}

type Directory struct {
	src Source
	log zerolog.Logger
}

func NewDirectory(src Source, log zerolog.Logger) *Directory {
	return &Directory{src: src, log: log}
}

// Load returns the backend contacts. On failure it returns the fallback
// list together with the error so callers can still render something.
func (d *Directory) Load(ctx context.Context) ([]model.Contact, error) {
	list, err := d.src.Contacts(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("load contacts, using fallback")
		return append([]model.Contact(nil), Fallback...), err
	}
	return list, nil
}

// DisplayName maps a user id to a human name, falling back to the id.
func DisplayName(id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
