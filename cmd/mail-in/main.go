// Package main is the entry point for mail-in, which parses an envelope+body
// stream from stdin and delivers every message to its recipients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jkim10/SecureMailer2/internal/config"
	"github.com/jkim10/SecureMailer2/internal/delivery"
	"github.com/jkim10/SecureMailer2/internal/mailbox"
	"github.com/jkim10/SecureMailer2/internal/parser"
	"github.com/jkim10/SecureMailer2/internal/transport"
	"github.com/jkim10/SecureMailer2/internal/transport/local"
	"github.com/jkim10/SecureMailer2/internal/transport/process"
	"github.com/jkim10/SecureMailer2/internal/transport/ses"
	"github.com/jkim10/SecureMailer2/internal/transport/stdout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Diagnostics go to stderr; stdout is left to the stdout transport.
	setupLogger(os.Stderr, cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping delivery", "signal", sig)
		cancel()
	}()

	os.Exit(run(ctx, cfg, os.Stdin))
}

// run parses in and delivers the result. It returns the process exit code.
func run(ctx context.Context, cfg *config.Config, in io.Reader) int {
	store := mailbox.NewStore(cfg.Mail.Root)

	msgs, err := parser.Parse(in, store, parser.WithMaxInputBytes(cfg.Mail.MaxInputBytes))
	if err != nil {
		slog.Error("aborting mail-in parsing", "error", err)
		return 1
	}

	tr, err := selectTransport(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to set up transport", "error", err)
		return 1
	}

	slog.Debug("delivering messages",
		"messages", len(msgs),
		"transport", tr.Name(),
	)

	res, err := delivery.New(tr).Deliver(ctx, msgs)
	if err != nil {
		slog.Error("delivery aborted",
			"delivered", res.Delivered,
			"failed", res.Failed,
			"error", err,
		)
		return 1
	}

	slog.Info("mail-in finished",
		"messages", len(msgs),
		"delivered", res.Delivered,
		"failed", res.Failed,
	)
	return 0
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectTransport builds the delivery backend named in the configuration.
func selectTransport(ctx context.Context, cfg *config.Config, store *mailbox.Store) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportProcess:
		slog.Debug("using process transport", "agent", cfg.Mail.AgentPath)
		return process.New(process.Config{
			AgentPath: cfg.Mail.AgentPath,
			MailRoot:  cfg.Mail.Root,
		}), nil

	case config.TransportLocal:
		slog.Debug("using local transport", "root", cfg.Mail.Root)
		return local.New(store), nil

	case config.TransportSES:
		if !cfg.SESConfigured() {
			return nil, errors.New("SES transport selected but SES_REGION, SES_SENDER and SES_DOMAIN are required")
		}
		slog.Info("using AWS SES transport",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
			"domain", cfg.SES.Domain,
		)
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			Domain:          cfg.SES.Domain,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return p, nil

	case config.TransportStdout:
		slog.Debug("using stdout transport")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
