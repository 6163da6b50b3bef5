// Package transport defines the interface for per-recipient delivery backends.
package transport

import (
	"context"
	"errors"
)

// ErrSpawn marks a failure to start a delivery at all (pipe or process
// creation). It is unrecoverable: callers abort the run instead of moving
// on to the next recipient.
var ErrSpawn = errors.New("failed to start delivery")

// Transport delivers one serialized message to one recipient mailbox.
// Implementations may spawn a process, write locally or call a remote API.
type Transport interface {
	// Deliver hands data to the mailbox named recipient. A returned error
	// that wraps ErrSpawn is fatal; any other error is a per-recipient
	// delivery failure.
	Deliver(ctx context.Context, recipient string, data []byte) error

	// Name returns the human-readable name of this transport.
	Name() string
}
