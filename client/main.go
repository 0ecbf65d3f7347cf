package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/chat-client/pkg/config"
	"github.com/mahaj/chat-client/pkg/logging"
	"github.com/mahaj/chat-client/pkg/session"
	"github.com/mahaj/chat-client/pkg/summary"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chat-client",
	Short:         "Terminal client for the chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig    string
	flagEnvFile   string
	flagBaseURL   string
	flagSocketURL string
	flagAs        string
	flagTransport string
	flagToken     string
	flagLogLevel  string
	flagLogFormat string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "optional YAML config file")
	flags.StringVar(&flagEnvFile, "env-file", config.DefaultEnvFile, "env file with CHAT_* variables (the default may be absent)")
	flags.StringVar(&flagBaseURL, "base-url", "", "backend HTTP origin")
	flags.StringVar(&flagSocketURL, "socket-url", "", "real-time origin (defaults to --base-url)")
	flags.StringVar(&flagAs, "as", "", "identity to act as")
	flags.StringVar(&flagTransport, "transport", "", "real-time transport: socketio or websocket")
	flags.StringVar(&flagToken, "token", "", "bearer token for the backend")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&flagLogFormat, "log-format", "", "log format (console or json)")

	rootCmd.AddCommand(contactsCmd, threadsCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers the command line flags over config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	flags := cmd.Flags()
	overrides := map[string]struct {
		dst *string
		val string
	}{
		"base-url":   {&cfg.BaseURL, flagBaseURL},
		"socket-url": {&cfg.SocketURL, flagSocketURL},
		"as":         {&cfg.ActingAs, flagAs},
		"transport":  {&cfg.Transport, flagTransport},
		"token":      {&cfg.Token, flagToken},
		"log-level":  {&cfg.LogLevel, flagLogLevel},
		"log-format": {&cfg.LogFormat, flagLogFormat},
	}
	for name, o := range overrides {
		if flags.Changed(name) {
			*o.dst = o.val
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr), nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List the people you can chat with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		sess, err := session.New(cfg, session.WithLogger(log))
		if err != nil {
			return err
		}
		defer sess.Close()

		list, err := sess.Contacts(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("showing built-in contacts")
		}
		out := cmd.OutOrStdout()
		for _, c := range list {
			fmt.Fprintln(out, renderContact(c))
		}
		return nil
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Show recent conversations with unread counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		sess, err := session.New(cfg, session.WithLogger(log))
		if err != nil {
			return err
		}
		defer sess.Close()

		agg := summary.New(sess.Self(), sess.API(), logging.Component(log, "summary"))
		if err := agg.Refresh(ctx); err != nil {
			return err
		}
		printThreads(cmd.OutOrStdout(), agg.Threads())
		return nil
	},
}
