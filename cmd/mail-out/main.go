// Package main is the entry point for mail-out, which writes one message read
// from stdin into the named recipient's mailbox.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/jkim10/SecureMailer2/internal/agent"
	"github.com/jkim10/SecureMailer2/internal/config"
	"github.com/jkim10/SecureMailer2/internal/mailbox"
)

func main() {
	// mail-out reports only through its exit status.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg, err := config.Load()
	if err != nil {
		os.Exit(agent.ExitFailure)
	}

	os.Exit(agent.Run(os.Args[1:], os.Stdin, mailbox.NewStore(cfg.Mail.Root)))
}
