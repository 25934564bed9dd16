package cli

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkravets/notelock/internal/engine"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/store"
	"github.com/dkravets/notelock/internal/store/inmemory"
)

// newScriptedApp builds a full app on an in-memory remote and feeds the
// command loop from script instead of stdin.
func newScriptedApp(t *testing.T, script string) (*App, *engine.Engine) {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	remote := inmemory.New()
	session := keyring.NewSession(remote, log, 0)
	session.SetUser(context.Background(), "user-1")
	adapter := store.NewAdapter(remote, session, log)
	eng := engine.New(session, adapter, log)

	app := NewApp(session, eng, nil, 5, log)
	app.reader = bufio.NewReader(strings.NewReader(script))
	return app, eng
}

func TestApp_RunSharesOneReaderWithPrompts(t *testing.T) {
	old := readPassword
	readPassword = func(fd int) ([]byte, error) {
		return []byte("correct horse battery staple"), nil
	}
	defer func() { readPassword = old }()

	// the line after add-note must reach the title prompt, not be lost to
	// a competing buffer on the command loop
	script := "unlock\nadd-note\nMy Title\nbody line\n\nexit\n"
	app, eng := newScriptedApp(t, script)

	app.Run(context.Background())

	notes := eng.ListNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "My Title", notes[0].Title)
	assert.Equal(t, "body line", notes[0].Content)
}

func TestApp_RunExitsOnEOF(t *testing.T) {
	app, _ := newScriptedApp(t, "help\n")
	// no exit command; the loop must stop at end of input
	app.Run(context.Background())
}
