// Package email defines the message model shared by the parser, the
// delivery orchestrator and the delivery agent, together with its
// serialized (pipe and mailbox file) form.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jkim10/SecureMailer2/internal/protocol"
)

var (
	// ErrInvalidSender is returned when a message is built without a valid sender.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrNoRecipients is returned when a message is built with no recipients.
	ErrNoRecipients = errors.New("message has no recipients")
)

// Message is a parsed envelope plus body. It is immutable once built;
// accessors return copies.
type Message struct {
	sender     string
	recipients []string
	body       []string
}

// New builds a Message. Recipients are deduplicated and sorted. Body lines
// are stored without their newline; an empty string is a blank line.
func New(sender string, recipients, body []string) (*Message, error) {
	if !protocol.ValidMailboxName(sender) || len(sender) > protocol.MaxMailboxNameLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}

	rcpts := slices.Clone(recipients)
	slices.Sort(rcpts)
	rcpts = slices.Compact(rcpts)
	if len(rcpts) == 0 {
		return nil, ErrNoRecipients
	}

	return &Message{
		sender:     sender,
		recipients: rcpts,
		body:       slices.Clone(body),
	}, nil
}

// Sender returns the envelope sender.
func (m *Message) Sender() string {
	return m.sender
}

// Recipients returns the sorted, deduplicated recipient list.
func (m *Message) Recipients() []string {
	return slices.Clone(m.recipients)
}

// Body returns the body lines.
func (m *Message) Body() []string {
	return slices.Clone(m.body)
}

// Lines returns the serialized form as newline-terminated lines: a From
// header, a To header, one blank separator line, then the body.
func (m *Message) Lines() []string {
	lines := make([]string, 0, len(m.body)+3)
	lines = append(lines,
		"From: "+m.sender+"\n",
		"To: "+strings.Join(m.recipients, ", ")+"\n",
		"\n",
	)
	for _, l := range m.body {
		lines = append(lines, l+"\n")
	}
	return lines
}

// Bytes returns the serialized form as one buffer.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range m.Lines() {
		buf.WriteString(l)
	}
	return buf.Bytes()
}

// Decode parses the serialized form produced by Bytes.
func Decode(data []byte) (*Message, error) {
	text := string(data)

	fromLine, rest, ok := strings.Cut(text, "\n")
	if !ok || !strings.HasPrefix(fromLine, "From: ") {
		return nil, fmt.Errorf("missing From header")
	}
	toLine, rest, ok := strings.Cut(rest, "\n")
	if !ok || !strings.HasPrefix(toLine, "To: ") {
		return nil, fmt.Errorf("missing To header")
	}
	sep, rest, ok := strings.Cut(rest, "\n")
	if !ok || sep != "" {
		return nil, fmt.Errorf("missing header separator")
	}

	var recipients []string
	for _, r := range strings.Split(strings.TrimPrefix(toLine, "To: "), ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}

	var body []string
	if rest != "" {
		body = strings.Split(strings.TrimSuffix(rest, "\n"), "\n")
	}

	return New(strings.TrimPrefix(fromLine, "From: "), recipients, body)
}
