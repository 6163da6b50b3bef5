package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkim10/SecureMailer2/internal/config"
	"github.com/jkim10/SecureMailer2/internal/mailbox"
)

func testConfig(t *testing.T, transport string, mailboxes ...string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for _, name := range mailboxes {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("failed to create mailbox %s: %v", name, err)
		}
	}
	return &config.Config{
		Transport: transport,
		Mail: config.MailConfig{
			Root:          root,
			AgentPath:     "./bin/mail-out",
			MaxInputBytes: 1 << 20,
		},
		Logging: config.LoggingConfig{Level: "error"},
	}
}

func TestRun_LocalTransport(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.TransportLocal, "alice", "bob")
	input := "MAIL FROM:<alice>\nRCPT TO:<bob>\nDATA\nhello\n.\n"

	if code := run(context.Background(), cfg, strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}

	got, err := os.ReadFile(filepath.Join(cfg.Mail.Root, "bob", "00001"))
	if err != nil {
		t.Fatalf("expected bob/00001: %v", err)
	}
	if want := "From: alice\nTo: bob\n\nhello\n"; string(got) != want {
		t.Errorf("content: got %q, want %q", string(got), want)
	}
}

func TestRun_InputTooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.TransportLocal, "alice", "bob")
	cfg.Mail.MaxInputBytes = 8

	input := "MAIL FROM:<alice>\nRCPT TO:<bob>\nDATA\nhello\n.\n"
	if code := run(context.Background(), cfg, strings.NewReader(input)); code != 1 {
		t.Fatalf("exit code: got %d, want 1", code)
	}

	entries, err := os.ReadDir(filepath.Join(cfg.Mail.Root, "bob"))
	if err != nil {
		t.Fatalf("failed to read mailbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("files in mailbox: got %d, want 0", len(entries))
	}
}

func TestRun_MissingAgentAborts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.TransportProcess, "alice", "bob")
	cfg.Mail.AgentPath = filepath.Join(t.TempDir(), "does-not-exist")

	input := "MAIL FROM:<alice>\nRCPT TO:<bob>\nDATA\nhello\n.\n"
	if code := run(context.Background(), cfg, strings.NewReader(input)); code != 1 {
		t.Fatalf("exit code: got %d, want 1", code)
	}
}

func TestSelectTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		transport string
		wantName  string
		wantErr   bool
	}{
		{name: "process", transport: config.TransportProcess, wantName: "process"},
		{name: "local", transport: config.TransportLocal, wantName: "local"},
		{name: "stdout", transport: config.TransportStdout, wantName: "stdout"},
		{name: "ses without settings", transport: config.TransportSES, wantErr: true},
		{name: "unknown", transport: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t, tt.transport)

			tr, err := selectTransport(context.Background(), cfg, mailbox.NewStore(cfg.Mail.Root))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got transport %q", tr.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Name() != tt.wantName {
				t.Errorf("name: got %q, want %q", tr.Name(), tt.wantName)
			}
		})
	}
}
