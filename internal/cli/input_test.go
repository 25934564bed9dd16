package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("  Q1 Plan  \n"))

	got, err := getSimpleText(reader, "Title:", &out)
	require.NoError(t, err)
	assert.Equal(t, "Q1 Plan", got)
	assert.Contains(t, out.String(), "Title:")
}

func TestGetSimpleText_PartialLineBeforeEOF(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("no newline"))

	got, err := getSimpleText(reader, "Title:", &out)
	require.NoError(t, err)
	assert.Equal(t, "no newline", got)
}

func TestGetSimpleText_EmptyInput(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader(""))

	_, err := getSimpleText(reader, "Title:", &out)
	assert.Error(t, err)
}

func TestGetMultiline(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("first line\nsecond line\n\nignored\n"))

	got, err := getMultiline(reader, "Content:", &out)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", got)
}

func TestGetMultiline_EmptyBody(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("\n"))

	got, err := getMultiline(reader, "Content:", &out)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetPassphrase_UsesSeam(t *testing.T) {
	old := readPassword
	readPassword = func(fd int) ([]byte, error) {
		return []byte("correct horse battery staple"), nil
	}
	defer func() { readPassword = old }()

	var out bytes.Buffer
	got, err := getPassphrase(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte("correct horse battery staple"), got)
	assert.Contains(t, out.String(), "Enter passphrase")
}
