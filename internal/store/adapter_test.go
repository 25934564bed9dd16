package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/cryptox"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/models"
	"github.com/dkravets/notelock/internal/store/inmemory"
)

type fakeKeySource struct {
	key    []byte
	epoch  uint64
	err    error
	userID string
}

func (f *fakeKeySource) Key() ([]byte, uint64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.key, f.epoch, nil
}

func (f *fakeKeySource) UserID() string { return f.userID }

func newTestAdapter(t *testing.T) (*Adapter, *inmemory.Store, *fakeKeySource) {
	t.Helper()
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	remote := inmemory.New()
	keys := &fakeKeySource{key: key, epoch: 1, userID: "user-1"}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewAdapter(remote, keys, log), remote, keys
}

func TestAdapter_InsertFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, remote, _ := newTestAdapter(t)

	payload := models.NotePayload{Version: models.PayloadVersion, Title: "Q1 Plan", Content: "ship it", Pinned: true}
	rec, err := a.Insert(ctx, models.TypeNote, payload)
	require.NoError(t, err)

	// the stored row never carries plaintext
	stored, err := remote.ListObjects(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotContains(t, string(stored[0].Ciphertext), "Q1 Plan")

	result, err := a.FetchObjects(ctx)
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	assert.Empty(t, result.Failed)

	got := result.Objects[0]
	assert.Equal(t, rec.ID, got.Record.ID)
	require.NotNil(t, got.Note)
	assert.Equal(t, payload, *got.Note)
	assert.Nil(t, got.Notebook)
	assert.Nil(t, got.Tag)
}

func TestAdapter_UpdateReplacesPayload(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAdapter(t)

	rec, err := a.Insert(ctx, models.TypeNotebook, models.NotebookPayload{Version: models.PayloadVersion, Name: "Drafts"})
	require.NoError(t, err)

	_, err = a.Update(ctx, rec.ID, models.NotebookPayload{Version: models.PayloadVersion, Name: "Published"})
	require.NoError(t, err)

	result, err := a.FetchObjects(ctx)
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	require.NotNil(t, result.Objects[0].Notebook)
	assert.Equal(t, "Published", result.Objects[0].Notebook.Name)
}

func TestAdapter_LockedKeySource(t *testing.T) {
	ctx := context.Background()
	a, _, keys := newTestAdapter(t)
	keys.err = common.ErrLocked

	_, err := a.Insert(ctx, models.TypeNote, models.NotePayload{})
	assert.ErrorIs(t, err, common.ErrLocked)

	_, err = a.FetchObjects(ctx)
	assert.ErrorIs(t, err, common.ErrLocked)
}

func TestAdapter_FetchObjectsPartialFailure(t *testing.T) {
	ctx := context.Background()
	a, remote, _ := newTestAdapter(t)

	var ids []string
	for _, title := range []string{"one", "two", "three", "four", "five"} {
		rec, err := a.Insert(ctx, models.TypeNote, models.NotePayload{Version: models.PayloadVersion, Title: title})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	require.True(t, remote.CorruptObject("user-1", ids[2]))

	result, err := a.FetchObjects(ctx)
	require.NoError(t, err)

	assert.Len(t, result.Objects, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, ids[2], result.Failed[0].ID)
	assert.Equal(t, models.TypeNote, result.Failed[0].Type)
	assert.ErrorIs(t, result.Failed[0].Err, cryptox.ErrDecryptionFailed)
}

func TestAdapter_FetchObjectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	a, remote, keys := newTestAdapter(t)

	// valid ciphertext whose plaintext is not the expected shape
	ciphertext, nonce, err := cryptox.Encrypt(keys.key, []byte("not json"))
	require.NoError(t, err)
	rec, err := remote.InsertObject(ctx, "user-1", models.TypeTag, ciphertext, nonce)
	require.NoError(t, err)

	result, err := a.FetchObjects(ctx)
	require.NoError(t, err)

	assert.Empty(t, result.Objects)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, rec.ID, result.Failed[0].ID)
	assert.ErrorIs(t, result.Failed[0].Err, common.ErrMalformedPayload)
}

func TestAdapter_FetchObjectsMinimalPayloadDefaults(t *testing.T) {
	ctx := context.Background()
	a, remote, keys := newTestAdapter(t)

	// a payload written before the optional fields existed still decodes,
	// with zero-value defaults rather than a decode failure
	ciphertext, nonce, err := cryptox.Encrypt(keys.key, []byte(`{"title":"legacy"}`))
	require.NoError(t, err)
	rec, err := remote.InsertObject(ctx, "user-1", models.TypeNote, ciphertext, nonce)
	require.NoError(t, err)

	result, err := a.FetchObjects(ctx)
	require.NoError(t, err)

	assert.Empty(t, result.Failed)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, rec.ID, result.Objects[0].Record.ID)

	note := result.Objects[0].Note
	require.NotNil(t, note)
	assert.Equal(t, "legacy", note.Title)
	assert.Zero(t, note.Version)
	assert.Empty(t, note.Content)
	assert.False(t, note.Pinned)
	assert.False(t, note.Starred)
	assert.False(t, note.Archived)
	assert.False(t, note.IsTemplate)
	assert.Empty(t, note.TemplateVariables)
}

func TestAdapter_EdgePassthrough(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAdapter(t)

	require.NoError(t, a.ReplaceEdges(ctx, "note-1", models.RelationTagged, []string{"tag-a"}))
	require.NoError(t, a.ReplaceParent(ctx, "note-1", models.RelationContains, "nb-1"))

	edges, err := a.FetchEdges(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Edge{
		{ParentID: "note-1", ChildID: "tag-a", Type: models.RelationTagged},
		{ParentID: "nb-1", ChildID: "note-1", Type: models.RelationContains},
	}, edges)
}

func TestAdapter_DeleteLeavesEdgesDangling(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAdapter(t)

	rec, err := a.Insert(ctx, models.TypeNote, models.NotePayload{Version: models.PayloadVersion, Title: "gone"})
	require.NoError(t, err)
	require.NoError(t, a.ReplaceParent(ctx, rec.ID, models.RelationContains, "nb-1"))

	require.NoError(t, a.Delete(ctx, rec.ID))

	// object row removal does not cascade into the edge table
	edges, err := a.FetchEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
