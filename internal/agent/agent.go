// Package agent implements the mail-out delivery agent: it writes one
// serialized message from its input into one mailbox. It has no error
// channel other than its exit status.
package agent

import (
	"bufio"
	"bytes"
	"io"

	"github.com/jkim10/SecureMailer2/internal/mailbox"
	"github.com/jkim10/SecureMailer2/internal/protocol"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Run delivers the message read from in to the mailbox named by the single
// element of args and returns the process exit code.
func Run(args []string, in io.Reader, store *mailbox.Store) int {
	if len(args) != 1 {
		return ExitFailure
	}

	name := args[0]
	if !protocol.ValidMailboxName(name) || len(name) > protocol.MaxMailboxNameLen || !store.Exists(name) {
		return ExitFailure
	}

	data, err := readMessage(in)
	if err != nil {
		return ExitFailure
	}

	if _, err := store.Deliver(name, data); err != nil {
		return ExitFailure
	}
	return ExitOK
}

// readMessage reads in line by line. Every line, including a final one
// without a terminator, ends up newline-terminated.
func readMessage(in io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	r := bufio.NewReader(in)

	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			buf.Write(line)
			if line[len(line)-1] != '\n' {
				buf.WriteByte('\n')
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
