// Package process implements a Transport that runs the mail-out delivery
// agent once per recipient and streams the message to it over a pipe.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/jkim10/SecureMailer2/internal/transport"
)

// Config holds the settings for spawning the delivery agent.
type Config struct {
	// AgentPath is the mail-out executable.
	AgentPath string

	// MailRoot is passed to the agent as MAIL_ROOT so both sides agree on
	// the mailbox location. Empty leaves the inherited environment alone.
	MailRoot string
}

// Transport spawns one agent process per delivery. Deliveries are
// synchronous: Deliver returns after the child has exited.
type Transport struct {
	agentPath string
	mailRoot  string
}

// New creates a process Transport.
func New(cfg Config) *Transport {
	return &Transport{
		agentPath: cfg.AgentPath,
		mailRoot:  cfg.MailRoot,
	}
}

// Deliver runs `<agent> <recipient>`, writes data to its stdin, closes the
// pipe and waits for it to exit. A non-zero exit status is a delivery
// failure. Failing to create the pipe or start the process wraps
// transport.ErrSpawn.
func (t *Transport) Deliver(ctx context.Context, recipient string, data []byte) error {
	cmd := exec.CommandContext(ctx, t.agentPath, recipient)
	if t.mailRoot != "" {
		cmd.Env = append(os.Environ(), "MAIL_ROOT="+t.mailRoot)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: pipe: %v", transport.ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSpawn, t.agentPath, err)
	}

	_, writeErr := stdin.Write(data)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("delivery agent exited with status %d", exitErr.ExitCode())
		}
		return fmt.Errorf("delivery agent failed: %w", waitErr)
	}

	// The agent succeeded; a broken pipe only means it stopped reading early.
	if writeErr != nil && !errors.Is(writeErr, syscall.EPIPE) {
		return fmt.Errorf("failed to write message to delivery agent: %w", writeErr)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		slog.Debug("closing delivery agent pipe", "error", closeErr)
	}

	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "process"
}
