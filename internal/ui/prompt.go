package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/spherical/pagesnap/internal/domain"
)

// PasswordPrompter asks for document passwords.
type PasswordPrompter struct {
	out  io.Writer
	read func() (string, error)
}

// NewTerminalPrompter reads passwords from stdin without echo when stdin is a
// terminal, and line by line otherwise.
func NewTerminalPrompter(out io.Writer) *PasswordPrompter {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return &PasswordPrompter{out: out, read: func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(b), err
		}}
	}
	return NewReaderPrompter(out, os.Stdin)
}

// NewReaderPrompter reads one password per line from r.
func NewReaderPrompter(out io.Writer, r io.Reader) *PasswordPrompter {
	scanner := bufio.NewScanner(r)
	return &PasswordPrompter{out: out, read: func() (string, error) {
		if !scanner.Scan() {
			return "", scanner.Err()
		}
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}}
}

// For returns a callback that prompts for the named document.
func (p *PasswordPrompter) For(name string) domain.PasswordFunc {
	return func(reason domain.PasswordReason) string {
		switch reason {
		case domain.IncorrectPassword:
			fmt.Fprintf(p.out, "Incorrect password for %s, try again (empty to skip): ", name)
		default:
			fmt.Fprintf(p.out, "Password for %s (empty to skip): ", name)
		}
		pw, err := p.read()
		if err != nil {
			return ""
		}
		return pw
	}
}

// Fixed answers every challenge with the same password. The second challenge
// means the password was wrong, so it gives up then.
func Fixed(password string) domain.PasswordFunc {
	return func(reason domain.PasswordReason) string {
		if reason == domain.IncorrectPassword {
			return ""
		}
		return password
	}
}
