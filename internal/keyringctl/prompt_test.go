package keyringctl

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubReadPassword(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more answers")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func TestPrompter_Piped(t *testing.T) {
	p := newPrompter(strings.NewReader("first\r\nsecond"), &bytes.Buffer{})
	assert.False(t, p.interactive)

	s, err := p.Secret("x: ")
	require.NoError(t, err)
	assert.Equal(t, "first", s)

	s, err = p.NewSecret("x: ")
	require.NoError(t, err)
	assert.Equal(t, "second", s)

	_, err = p.Secret("x: ")
	assert.ErrorIs(t, err, errEmptySecret)
}

func TestPrompter_Terminal(t *testing.T) {
	stubReadPassword(t, "Abcd1234", "Abcd1234")
	var errOut bytes.Buffer
	p := &prompter{fd: 0, interactive: true, errOut: &errOut}

	s, err := p.NewSecret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "Abcd1234", s)
	assert.Equal(t, "Password: \nRepeat password: \n", errOut.String())
}

func TestPrompter_TerminalMismatch(t *testing.T) {
	stubReadPassword(t, "Abcd1234", "Abcd12345")
	p := &prompter{fd: 0, interactive: true, errOut: &bytes.Buffer{}}

	_, err := p.NewSecret("Password: ")
	assert.ErrorIs(t, err, errSecretsDontMatch)
}

func TestPrompter_TerminalEmpty(t *testing.T) {
	stubReadPassword(t, "")
	p := &prompter{fd: 0, interactive: true, errOut: &bytes.Buffer{}}

	_, err := p.Secret("Password: ")
	assert.ErrorIs(t, err, errEmptySecret)
}
