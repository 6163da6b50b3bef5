// Package protocol classifies single lines of the envelope protocol
// (MAIL FROM, RCPT TO, DATA and the "." terminator) and validates mailbox
// names. All functions are pure.
package protocol

import (
	"regexp"
	"strings"
)

// MaxMailboxNameLen is the longest mailbox name accepted anywhere.
const MaxMailboxNameLen = 255

// Line length ceilings for the control lines. The MAIL FROM and RCPT TO
// limits are the mailbox ceiling plus the keyword overhead.
const (
	maxMailFromLineLen = MaxMailboxNameLen + 12
	maxRcptToLineLen   = MaxMailboxNameLen + 12
	maxDataLineLen     = MaxMailboxNameLen + 10
)

// Terminator ends a message body and anchors resynchronization.
const Terminator = "."

var (
	mailFromRe = regexp.MustCompile(`^(?i:MAIL FROM):<.{1,255}>$`)
	rcptToRe   = regexp.MustCompile(`^(?i:RCPT TO):<.{1,255}>$`)
)

// ValidMailboxName reports whether s is a usable mailbox name: it must be
// non-empty, start with a letter and contain only letters, digits, '+', '-'
// and '_'. The length ceiling is left to callers.
func ValidMailboxName(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLetter(c) || isDigit(c) || c == '+' || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// MatchMailFrom reports whether line is a MAIL FROM:<X> control line.
func MatchMailFrom(line string) bool {
	if len(line) > maxMailFromLineLen {
		return false
	}
	return mailFromRe.MatchString(line)
}

// MatchRcptTo reports whether line is a RCPT TO:<X> control line.
func MatchRcptTo(line string) bool {
	if len(line) > maxRcptToLineLen {
		return false
	}
	return rcptToRe.MatchString(line)
}

// MatchData reports whether line is the DATA delimiter.
func MatchData(line string) bool {
	if len(line) > maxDataLineLen {
		return false
	}
	return strings.EqualFold(line, "DATA")
}

// IsTerminator reports whether line is the lone-dot end-of-message marker.
func IsTerminator(line string) bool {
	return line == Terminator
}

// ExtractIdentifier returns the text between the first '<' and the closing
// '>' at the end of the line. It returns "" when the line has no '<'.
// The result still has to be checked with ValidMailboxName.
func ExtractIdentifier(line string) string {
	start := strings.IndexByte(line, '<')
	if start < 0 {
		return ""
	}
	rest := line[start+1:]
	return strings.TrimSuffix(rest, ">")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
