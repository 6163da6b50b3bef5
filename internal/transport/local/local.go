// Package local implements a Transport that writes straight into the
// mailbox store from the ingesting process, without spawning mail-out.
package local

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkim10/SecureMailer2/internal/mailbox"
)

// Transport delivers through a mailbox.Store.
type Transport struct {
	store *mailbox.Store
}

// New creates a local Transport over store.
func New(store *mailbox.Store) *Transport {
	return &Transport{store: store}
}

// Deliver writes data as the next message in the recipient's mailbox.
func (t *Transport) Deliver(ctx context.Context, recipient string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seq, err := t.store.Deliver(recipient, data)
	if err != nil {
		return fmt.Errorf("local delivery to %s: %w", recipient, err)
	}

	slog.Debug("message stored", "mailbox", recipient, "sequence", seq)
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "local"
}
