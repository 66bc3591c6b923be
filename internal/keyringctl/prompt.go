package keyringctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Seams for tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var (
	errEmptySecret      = errors.New("empty secret")
	errSecretsDontMatch = errors.New("secrets do not match")
)

// prompter reads secrets without echo when stdin is a terminal and one per
// line otherwise, so the tool can be scripted.
type prompter struct {
	in          *bufio.Reader
	fd          int
	interactive bool
	errOut      io.Writer
}

func newPrompter(in io.Reader, errOut io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), fd: -1, errOut: errOut}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.interactive = isTerminal(p.fd)
	}
	return p
}

// Secret reads one secret.
func (p *prompter) Secret(prompt string) (string, error) {
	if p.interactive {
		fmt.Fprint(p.errOut, prompt)
		b, err := readPassword(p.fd)
		fmt.Fprintln(p.errOut)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		if len(b) == 0 {
			return "", errEmptySecret
		}
		return string(b), nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return "", errEmptySecret
		}
		return "", fmt.Errorf("read secret: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errEmptySecret
	}
	return line, nil
}

// NewSecret reads a secret that is about to be set. On a terminal it is
// asked for twice.
func (p *prompter) NewSecret(prompt string) (string, error) {
	s, err := p.Secret(prompt)
	if err != nil {
		return "", err
	}
	if !p.interactive {
		return s, nil
	}
	again, err := p.Secret("Repeat " + strings.ToLower(prompt[:1]) + prompt[1:])
	if err != nil {
		return "", err
	}
	if again != s {
		return "", errSecretsDontMatch
	}
	return s, nil
}
