package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkravets/notelock/internal/logging"
)

var testSecret = []byte("test-secret-key")

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseUserID(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)

	userID, err := ParseUserID(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestParseUserID_WrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseUserID(token, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseUserID_Expired(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseUserID(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseUserID_Garbage(t *testing.T) {
	_, err := ParseUserID("not.a.token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseUserID_NoSubject(t *testing.T) {
	token, err := GenerateToken("", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseUserID(token, testSecret)
	assert.ErrorIs(t, err, ErrNoSubject)
}

// fakeSession records the transitions the watcher drives.
type fakeSession struct {
	userID   string
	setCalls int
}

func (f *fakeSession) SetUser(_ context.Context, userID string) {
	f.setCalls++
	f.userID = userID
}

func (f *fakeSession) SignOut(ctx context.Context) { f.SetUser(ctx, "") }

func (f *fakeSession) UserID() string { return f.userID }

type fakeGraph struct {
	resets int
}

func (f *fakeGraph) Reset() { f.resets++ }

func TestWatcher_SignIn(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{}
	graph := &fakeGraph{}
	w := NewWatcher(testSecret, session, graph, testLogger())

	token, err := GenerateToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.TokenIssued(ctx, token))

	assert.Equal(t, "user-1", session.userID)
	assert.Zero(t, graph.resets)
}

func TestWatcher_RefreshSameUserKeepsGraph(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{}
	graph := &fakeGraph{}
	w := NewWatcher(testSecret, session, graph, testLogger())

	token1, err := GenerateToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.TokenIssued(ctx, token1))

	// refreshed credential, same subject
	token2, err := GenerateToken("user-1", testSecret, 2*time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.TokenIssued(ctx, token2))

	assert.Equal(t, "user-1", session.userID)
	assert.Zero(t, graph.resets)
}

func TestWatcher_UserChangeResetsGraph(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{}
	graph := &fakeGraph{}
	w := NewWatcher(testSecret, session, graph, testLogger())

	token1, err := GenerateToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.TokenIssued(ctx, token1))

	token2, err := GenerateToken("user-2", testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.TokenIssued(ctx, token2))

	assert.Equal(t, "user-2", session.userID)
	assert.Equal(t, 1, graph.resets)
}

func TestWatcher_InvalidTokenLeavesSessionAlone(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{userID: "user-1"}
	graph := &fakeGraph{}
	w := NewWatcher(testSecret, session, graph, testLogger())

	err := w.TokenIssued(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, "user-1", session.userID)
	assert.Zero(t, graph.resets)
}

func TestWatcher_SignedOut(t *testing.T) {
	ctx := context.Background()
	session := &fakeSession{userID: "user-1"}
	graph := &fakeGraph{}
	w := NewWatcher(testSecret, session, graph, testLogger())

	w.SignedOut(ctx)

	assert.Empty(t, session.userID)
	assert.Equal(t, 1, graph.resets)
}
