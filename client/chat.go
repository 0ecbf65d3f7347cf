package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mahaj/chat-client/pkg/config"
	"github.com/mahaj/chat-client/pkg/model"
	"github.com/mahaj/chat-client/pkg/session"
	"github.com/mahaj/chat-client/pkg/summary"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var chatCmd = &cobra.Command{
	Use:   "chat <peer | /chat/{peer}?as={self}>",
	Short: "Open a conversation and chat from stdin",
	Long: `Open a conversation. Each input line is sent as a message.

Commands:
  /switch <peer>   move to another conversation
  /quit            leave`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	route, err := session.ParseRoute(args[0])
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("as") && (cfg.ActingAs == "" || route.Self != config.DefaultActingAs) {
		cfg.ActingAs = route.Self
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	sess, err := session.New(cfg, session.WithLogger(log))
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()

	var (
		contacts []model.Contact
		sidebar  *summary.Aggregator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := sess.Contacts(gctx)
		if err != nil {
			log.Warn().Err(err).Msg("showing built-in contacts")
		}
		contacts = list
		return nil
	})
	g.Go(func() error {
		agg, err := sess.Sidebar(gctx)
		sidebar = agg
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	fmt.Fprintf(out, "contacts: %s\n", joinContacts(contacts))
	if err := sidebar.Err(); err != nil {
		log.Warn().Err(err).Msg("recent conversations unavailable")
	} else {
		printThreads(out, sidebar.Threads())
	}

	view, err := sess.OpenThread(ctx, route.Peer)
	if err != nil {
		return err
	}
	if err := view.LoadErr(); err != nil {
		log.Warn().Err(err).Msg("history unavailable")
	}

	p := newPrinter(out, sess.Self())
	p.Header(view.Peer(), view.PeerTyping())
	p.Sync(view.Messages(), view.PeerTyping())
	view.OnChange(func() { p.Sync(view.Messages(), view.PeerTyping()) })

	lines := readLines(ctx, cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, view, p, line); quit {
				return nil
			}
		}
	}
}

// handleLine applies one input line and reports whether the user quit.
func handleLine(ctx context.Context, view *session.ThreadView, p *printer, line string) bool {
	switch {
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/switch "):
		peer := strings.TrimSpace(strings.TrimPrefix(line, "/switch "))
		if peer == "" {
			return false
		}
		view.Switch(ctx, peer)
		p.Reset()
		p.Header(view.Peer(), view.PeerTyping())
		p.Sync(view.Messages(), view.PeerTyping())
	default:
		view.SetDraft(line)
		view.Submit()
	}
	return false
}

func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
