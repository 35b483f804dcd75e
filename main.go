package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bassamadnan/mailcmd/bot"
	"github.com/bassamadnan/mailcmd/config"
	"github.com/bassamadnan/mailcmd/credential"
	"github.com/bassamadnan/mailcmd/fetch"
	"github.com/bassamadnan/mailcmd/gmail"
	"github.com/bassamadnan/mailcmd/tui"
)

const (
	sendCamsToken = "send_cams"
	keyringKey    = "gmail-token"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailcmd",
		Short: "Run one poll of the command inbox and reply to an authorized command",
		Long: "mailcmd reads the newest inbox message, trashes it, and when it comes from the\n" +
			"allowed sender with a subject of the form \"cmd: <token>\" runs that command and\n" +
			"replies with the results. Schedule it with cron or a systemd timer.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
				return run(ctx, cfg, logger)
			})
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(&cobra.Command{
		Use:          "authorize",
		Short:        "Run the OAuth consent flow and store the token",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
				auth, err := newAuthenticator(cfg, logger)
				if err != nil {
					return err
				}
				if err := auth.Reset(); err != nil {
					return err
				}
				if _, err := auth.Authorize(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token saved.")
				return nil
			})
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func withApp(cmd *cobra.Command, fn func(context.Context, config.Config, *slog.Logger) error) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, cfg, logger)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	auth, err := newAuthenticator(cfg, logger)
	if err != nil {
		return err
	}
	httpClient, err := auth.HTTPClient(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	client, err := gmail.NewClient(ctx, httpClient, cfg.InboxWindow, logger)
	if err != nil {
		return err
	}

	registry := bot.NewRegistry()
	registry.Register(sendCamsToken, &bot.FetchHandler{
		Fetcher:   fetch.New(nil),
		Resources: resources(cfg.SendCams.Resources),
		Subject:   cfg.Reply.Subject,
		Body:      cfg.Reply.Body,
		Logger:    logger.With("command", sendCamsToken),
	})

	b, err := bot.New(bot.Options{
		Transport: client,
		Parser:    bot.NewParser(cfg.AllowedSender),
		Registry:  registry,
		Composer:  bot.NewComposer(client, cfg.Reply.From, logger),
		ReplyTo:   cfg.Reply.To,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	outcome, err := b.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.Info("run finished", "outcome", outcome.String())
	return nil
}

func resources(in []config.Resource) []bot.Resource {
	out := make([]bot.Resource, 0, len(in))
	for _, r := range in {
		out = append(out, bot.Resource{Name: r.Name, URL: r.URL, Path: r.Path})
	}
	return out
}

func newAuthenticator(cfg config.Config, logger *slog.Logger) (*gmail.Authenticator, error) {
	scopes, err := gmail.Scopes(cfg.Scopes)
	if err != nil {
		return nil, err
	}

	var store gmail.TokenStore
	switch cfg.TokenStore {
	case config.TokenStoreKeyring:
		ring, err := credential.Open(cfg.KeyringDir, cfg.KeyringPassword)
		if err != nil {
			return nil, err
		}
		store = gmail.KeyringTokenStore{Store: ring, Key: keyringKey}
	default:
		store = gmail.FileTokenStore{Path: cfg.TokenFile}
	}

	opts := gmail.AuthOptions{
		CredentialsFile: cfg.CredentialsFile,
		Scopes:          scopes,
		Store:           store,
		Out:             os.Stdout,
		Logger:          logger,
	}
	if cfg.ManualAuth {
		opts.Prompt = tui.PromptAuthCode
	}
	auth, err := gmail.NewAuthenticator(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail auth: %w. Ensure %s is present and valid", err, cfg.CredentialsFile)
	}
	return auth, nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, cleanup, err
		}
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open log file: %w", err)
		}
		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = file.Close
		return slog.New(handler), cleanup, nil
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts)), cleanup, nil
}
