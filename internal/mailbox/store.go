// Package mailbox implements the on-disk mailbox store: one directory per
// mailbox under a mail root, holding messages as files named by a 5-digit
// zero-padded sequence number.
package mailbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jkim10/SecureMailer2/internal/protocol"
)

// SequenceDigits is the width of a message file name.
const SequenceDigits = 5

// maxSequence is the largest number that fits in SequenceDigits digits.
const maxSequence = 99999

// maxCreateAttempts bounds the create-exclusive retry loop in Deliver.
const maxCreateAttempts = 100

var (
	// ErrInvalidMailbox is returned for names that fail validation or do not exist.
	ErrInvalidMailbox = errors.New("invalid mailbox")

	// ErrCorruptMailbox is returned when a mailbox holds an entry whose
	// name is not a sequence number.
	ErrCorruptMailbox = errors.New("corrupt mailbox")

	// ErrMailboxFull is returned when no sequence number is left.
	ErrMailboxFull = errors.New("mailbox full")
)

// Store is a mail root directory. Mailbox directories are provisioned
// outside this package.
type Store struct {
	root string
}

// NewStore returns a Store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the mail root directory.
func (s *Store) Root() string {
	return s.root
}

// Exists reports whether name is a valid mailbox name with a directory
// under the mail root.
func (s *Store) Exists(name string) bool {
	if !protocol.ValidMailboxName(name) || len(name) > protocol.MaxMailboxNameLen {
		return false
	}
	info, err := os.Stat(s.dir(name))
	return err == nil && info.IsDir()
}

// Path returns the file path for sequence number seq in mailbox name.
func (s *Store) Path(name, seq string) string {
	return filepath.Join(s.root, name, seq)
}

// NextSequence scans the mailbox and returns one more than the highest
// sequence number present, formatted as a 5-digit string. An empty mailbox
// yields "00001".
func (s *Store) NextSequence(name string) (string, error) {
	n, err := s.highestSequence(name)
	if err != nil {
		return "", err
	}
	if n >= maxSequence {
		return "", fmt.Errorf("%w: %s", ErrMailboxFull, name)
	}
	return FormatSequence(n + 1), nil
}

// Deliver writes data as a new message in mailbox name and returns the
// sequence number used. Files are created exclusively, so concurrent
// deliveries to one mailbox move on to the next number instead of
// overwriting each other.
func (s *Store) Deliver(name string, data []byte) (string, error) {
	if !s.Exists(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMailbox, name)
	}

	n, err := s.highestSequence(name)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		n++
		if n > maxSequence {
			return "", fmt.Errorf("%w: %s", ErrMailboxFull, name)
		}

		seq := FormatSequence(n)
		f, err := os.OpenFile(s.Path(name, seq), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create message file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write message file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close message file: %w", err)
		}
		return seq, nil
	}

	return "", fmt.Errorf("failed to allocate sequence number in %s after %d attempts", name, maxCreateAttempts)
}

// FormatSequence formats n as a zero-padded message file name.
func FormatSequence(n int) string {
	return fmt.Sprintf("%0*d", SequenceDigits, n)
}

// ParseSequence parses a message file base name. It accepts 1 to 5 ASCII
// digits; "00000" parses as zero.
func ParseSequence(stem string) (int, error) {
	if stem == "" || len(stem) > SequenceDigits {
		return 0, fmt.Errorf("%w: entry %q is not a sequence number", ErrCorruptMailbox, stem)
	}
	for i := 0; i < len(stem); i++ {
		if stem[i] < '0' || stem[i] > '9' {
			return 0, fmt.Errorf("%w: entry %q is not a sequence number", ErrCorruptMailbox, stem)
		}
	}
	return strconv.Atoi(stem)
}

// highestSequence returns the largest sequence number in the mailbox, or 0
// when it is empty. Entry extensions are ignored.
func (s *Store) highestSequence(name string) (int, error) {
	entries, err := os.ReadDir(s.dir(name))
	if err != nil {
		return 0, fmt.Errorf("failed to read mailbox %s: %w", name, err)
	}

	highest := 0
	for _, e := range entries {
		n, err := ParseSequence(stem(e.Name()))
		if err != nil {
			return 0, fmt.Errorf("mailbox %s: %w", name, err)
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (s *Store) dir(name string) string {
	return filepath.Join(s.root, name)
}

// stem strips the final extension from a file name.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
