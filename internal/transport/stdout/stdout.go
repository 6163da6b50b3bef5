// Package stdout implements a Transport that prints deliveries to standard
// output instead of storing them. Useful for dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// Transport prints each delivery in a human-readable format.
type Transport struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a stdout Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a stdout Transport that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Deliver prints the recipient mailbox and the serialized message.
func (t *Transport) Deliver(_ context.Context, recipient string, data []byte) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Mailbox: %s (%s)\n", recipient, humanize.IBytes(uint64(len(data)))))
	b.WriteString("----------------------------------------\n")
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("========================================\n")

	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write delivery: %w", err)
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}
