package identity

import (
	"context"

	"github.com/dkravets/notelock/internal/logging"
)

// SessionControl is the slice of the key session the watcher drives.
// Implemented by keyring.Session.
type SessionControl interface {
	SetUser(ctx context.Context, userID string)
	SignOut(ctx context.Context)
	UserID() string
}

// GraphControl discards decrypted state when the session ends.
// Implemented by engine.Engine.
type GraphControl interface {
	Reset()
}

// Watcher translates auth events from the session provider into session
// transitions. SetUser is a no-op for an unchanged user id, so a token
// refresh never drops the master key or the decrypted graph.
type Watcher struct {
	secret  []byte
	session SessionControl
	graph   GraphControl
	log     logging.Logger
}

func NewWatcher(secret []byte, session SessionControl, graph GraphControl, log logging.Logger) *Watcher {
	return &Watcher{secret: secret, session: session, graph: graph, log: log}
}

// TokenIssued handles both initial sign-in and refresh: the subject is
// extracted and asserted on the session. Only an actual change of subject
// locks and clears.
func (w *Watcher) TokenIssued(ctx context.Context, token string) error {
	userID, err := ParseUserID(token, w.secret)
	if err != nil {
		return err
	}

	prev := w.session.UserID()
	w.session.SetUser(ctx, userID)
	if prev != "" && prev != userID {
		w.log.Info(ctx, "authenticated user changed, graph discarded")
		w.graph.Reset()
	}
	return nil
}

// SignedOut ends the session: key wiped, graph discarded.
func (w *Watcher) SignedOut(ctx context.Context) {
	w.session.SignOut(ctx)
	w.graph.Reset()
}
