// Package parser turns an envelope+body line stream into messages.
//
// The stream is a sequence of
//
//	MAIL FROM:<sender>
//	RCPT TO:<recipient>     (repeatable)
//	DATA
//	<body lines>            (a leading "." is unescaped)
//	.
//
// blocks. A malformed control line discards the message in progress and
// the parser skips ahead to the next lone "." before accepting a new
// MAIL FROM, so one bad message never corrupts the ones after it.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jkim10/SecureMailer2/internal/email"
	"github.com/jkim10/SecureMailer2/internal/protocol"
)

// DefaultMaxInputBytes is the cumulative input ceiling for one run.
const DefaultMaxInputBytes int64 = 1_000_000_000

// ErrInputTooLarge aborts a run whose input exceeds the byte ceiling.
var ErrInputTooLarge = errors.New("maximum input size exceeded")

// State is the parser mode.
type State int

const (
	// AwaitSender expects a MAIL FROM line.
	AwaitSender State = iota
	// AwaitRecipients expects RCPT TO lines or DATA.
	AwaitRecipients
	// InBody collects body lines until the terminator.
	InBody
	// Resync discards lines until the terminator.
	Resync
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AwaitSender:
		return "AwaitSender"
	case AwaitRecipients:
		return "AwaitRecipients"
	case InBody:
		return "InBody"
	case Resync:
		return "Resync"
	default:
		return "Unknown"
	}
}

// MailboxChecker reports whether a mailbox exists. mailbox.Store
// implements it.
type MailboxChecker interface {
	Exists(name string) bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxInputBytes overrides DefaultMaxInputBytes.
func WithMaxInputBytes(n int64) Option {
	return func(p *Parser) {
		p.maxBytes = n
	}
}

// WithLogger sets the logger used for protocol violations. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		p.log = l
	}
}

// Parser is the envelope/body state machine. It owns the buffers of the
// message in progress and the list of completed messages.
type Parser struct {
	mailboxes MailboxChecker
	log       *slog.Logger
	maxBytes  int64

	state    State
	consumed int64
	lineNo   int

	sender     string
	recipients []string
	body       []string

	messages []*email.Message
}

// New creates a Parser in the AwaitSender state.
func New(mailboxes MailboxChecker, opts ...Option) *Parser {
	p := &Parser{
		mailboxes: mailboxes,
		log:       slog.Default(),
		maxBytes:  DefaultMaxInputBytes,
		state:     AwaitSender,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current mode.
func (p *Parser) State() State {
	return p.state
}

// Messages returns the messages completed so far.
func (p *Parser) Messages() []*email.Message {
	return p.messages
}

// Feed processes one input line, without its line terminator. It returns
// ErrInputTooLarge once the cumulative input exceeds the ceiling; the parser
// must not be fed again after that.
func (p *Parser) Feed(line string) error {
	p.lineNo++

	n := int64(len(line))
	if n == 0 {
		n = 1
	}
	p.consumed += n
	if p.consumed > p.maxBytes {
		return ErrInputTooLarge
	}

	switch p.state {
	case Resync:
		p.handleResync(line)
	case AwaitSender:
		p.handleSender(line)
	case AwaitRecipients:
		p.handleRecipient(line)
	case InBody:
		p.handleBody(line)
	}
	return nil
}

// Finish reports a message left unterminated at end of input. The partial
// message is dropped.
func (p *Parser) Finish() {
	if p.state == AwaitSender {
		return
	}
	p.log.Warn("input ended inside a message, discarding it",
		"state", p.state.String(),
		"sender", p.sender,
	)
	p.reset()
}

// handleResync skips everything up to the next terminator.
func (p *Parser) handleResync(line string) {
	if protocol.IsTerminator(line) {
		p.reset()
	}
}

// handleSender expects MAIL FROM:<sender> with an existing sender mailbox.
func (p *Parser) handleSender(line string) {
	if line == "" {
		p.violation("empty line found in control lines")
		return
	}
	if !protocol.MatchMailFrom(line) {
		p.violation("MAIL FROM control line invalid formatting")
		return
	}

	sender := protocol.ExtractIdentifier(line)
	if !protocol.ValidMailboxName(sender) || !p.mailboxes.Exists(sender) {
		p.violation("invalid MAIL FROM username", "username", sender)
		return
	}

	p.sender = sender
	p.state = AwaitRecipients
}

// handleRecipient collects RCPT TO lines until DATA. Recipients with bad
// names are dropped without discarding the message; whether the mailbox
// exists is only checked at delivery time.
func (p *Parser) handleRecipient(line string) {
	if line == "" {
		p.violation("empty line found in control lines")
		return
	}

	if protocol.MatchData(line) {
		if len(p.recipients) == 0 {
			p.violation("no valid RCPT TO lines")
			return
		}
		p.state = InBody
		return
	}

	if !protocol.MatchRcptTo(line) {
		p.violation("RCPT TO control line invalid formatting")
		return
	}

	rcpt := protocol.ExtractIdentifier(line)
	if !protocol.ValidMailboxName(rcpt) {
		p.log.Warn("invalid RCPT TO username, skipping recipient",
			"line", p.lineNo,
			"username", rcpt,
		)
		return
	}
	p.recipients = append(p.recipients, rcpt)
}

// handleBody collects body lines and emits the message on the terminator.
func (p *Parser) handleBody(line string) {
	if protocol.IsTerminator(line) {
		p.emit()
		return
	}

	// Dot transparency: "..foo" is stored as ".foo".
	line = strings.TrimPrefix(line, ".")
	p.body = append(p.body, line)
}

// emit builds the message in progress and starts over.
func (p *Parser) emit() {
	msg, err := email.New(p.sender, p.recipients, p.body)
	if err != nil {
		// Unreachable through the transitions above.
		p.log.Warn("discarding malformed message", "line", p.lineNo, "error", err)
	} else {
		p.messages = append(p.messages, msg)
		p.log.Debug("message accepted",
			"sender", msg.Sender(),
			"recipients", len(msg.Recipients()),
			"body_lines", len(p.body),
		)
	}
	p.reset()
}

// violation logs a protocol error, drops the message in progress and
// switches to Resync.
func (p *Parser) violation(reason string, attrs ...any) {
	args := append([]any{"line", p.lineNo}, attrs...)
	p.log.Warn(reason+", skipping to end of message", args...)

	p.sender = ""
	p.recipients = nil
	p.body = nil
	p.state = Resync
}

// reset clears the buffers and returns to AwaitSender.
func (p *Parser) reset() {
	p.sender = ""
	p.recipients = nil
	p.body = nil
	p.state = AwaitSender
}

// Parse reads r to the end and returns every well-formed message. Line
// terminators may be "\n" or "\r\n". The byte ceiling is checked while a
// line is still being read, so an oversized line is rejected before it is
// held in memory.
func Parse(r io.Reader, mailboxes MailboxChecker, opts ...Option) ([]*email.Message, error) {
	p := New(mailboxes, opts...)
	br := bufio.NewReader(r)

	var buf []byte
	for {
		frag, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}

		buf = append(buf, frag...)
		if p.consumed+int64(len(buf)) > p.maxBytes {
			return nil, ErrInputTooLarge
		}
		if isPrefix {
			continue
		}

		if err := p.Feed(string(buf)); err != nil {
			return nil, err
		}
		buf = buf[:0]
	}

	p.Finish()
	return p.Messages(), nil
}
