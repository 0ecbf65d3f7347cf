// verify_api probes a chat backend: it fetches contacts, the thread list of
// one user and the history page of one conversation, and reports what came
// back.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/mahaj/chat-client/pkg/api"
	"github.com/mahaj/chat-client/pkg/config"
	"github.com/mahaj/chat-client/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagBaseURL string
	flagSelf    string
	flagPeer    string
	flagToken   string
	flagLimit   int
	flagTimeout time.Duration
	flagMark    bool
)

var rootCmd = &cobra.Command{
	Use:          "verify_api",
	Short:        "Check that a chat backend answers the client's HTTP endpoints",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagBaseURL, "base-url", config.DefaultBaseURL, "backend HTTP origin")
	flags.StringVar(&flagSelf, "as", config.DefaultActingAs, "identity whose threads are fetched")
	flags.StringVar(&flagPeer, "peer", "nasir", "peer whose conversation history is fetched")
	flags.StringVar(&flagToken, "token", os.Getenv("CHAT_TOKEN"), "optional bearer token")
	flags.IntVar(&flagLimit, "limit", 50, "history page size")
	flags.DurationVar(&flagTimeout, "timeout", 15*time.Second, "timeout per request")
	flags.BoolVar(&flagMark, "mark-read", false, "also mark the conversation read")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.New("debug", "console", os.Stderr)
	client := api.New(flagBaseURL,
		api.WithToken(flagToken),
		api.WithTimeout(flagTimeout),
		api.WithLogger(logging.Component(log, "api")),
	)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	failed := false
	check := func(name string, err error, ev func(*zerolog.Event)) {
		if err != nil {
			failed = true
			log.Error().Err(err).Str("check", name).Msg("failed")
			return
		}
		e := log.Info().Str("check", name)
		ev(e)
		e.Msg("ok")
	}

	list, err := client.Contacts(ctx)
	check("contacts", err, func(e *zerolog.Event) { e.Int("count", len(list)) })

	threads, err := client.Threads(ctx, flagSelf)
	check("threads", err, func(e *zerolog.Event) {
		unread := 0
		for _, t := range threads {
			unread += t.Unread
		}
		e.Int("count", len(threads)).Int("unread", unread)
	})

	msgs, err := client.History(ctx, flagSelf, flagPeer, flagLimit)
	check("history", err, func(e *zerolog.Event) {
		e.Int("count", len(msgs))
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			e.Str("last_id", last.ID).Time("last_at", time.UnixMilli(last.TS))
		}
	})

	if flagMark {
		err := client.MarkRead(ctx, flagSelf, flagPeer)
		check("mark-read", err, func(*zerolog.Event) {})
	}

	if failed {
		return errCheckFailed
	}
	return nil
}

var errCheckFailed = errors.New("one or more checks failed")
