package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/models"
)

const testUser = "user-1"

func TestStore_InsertAssignsIDAndTimestamps(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte("ct"), []byte("nonce-nonce!"))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.TypeNote, rec.Type)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
}

func TestStore_UpdateRefreshesTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte("v1"), []byte("n1"))
	require.NoError(t, err)

	updated, err := s.UpdateObject(ctx, testUser, rec.ID, []byte("v2"), []byte("n2"))
	require.NoError(t, err)

	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, []byte("v2"), updated.Ciphertext)
	assert.Equal(t, rec.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(rec.UpdatedAt))
}

func TestStore_UpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.UpdateObject(ctx, testUser, "missing", []byte("ct"), []byte("n"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_DeleteObject(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.InsertObject(ctx, testUser, models.TypeTag, []byte("ct"), []byte("n"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteObject(ctx, testUser, rec.ID))
	assert.ErrorIs(t, s.DeleteObject(ctx, testUser, rec.ID), common.ErrNotFound)

	records, err := s.ListObjects(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_ListObjectsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte("a"), []byte("n"))
	require.NoError(t, err)
	second, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte("b"), []byte("n"))
	require.NoError(t, err)
	third, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte("c"), []byte("n"))
	require.NoError(t, err)

	// touching the oldest row moves it to the front
	_, err = s.UpdateObject(ctx, testUser, first.ID, []byte("a2"), []byte("n"))
	require.NoError(t, err)

	records, err := s.ListObjects(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, third.ID, records[1].ID)
	assert.Equal(t, second.ID, records[2].ID)
}

func TestStore_UserIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.InsertObject(ctx, "alice", models.TypeNote, []byte("ct"), []byte("n"))
	require.NoError(t, err)

	records, err := s.ListObjects(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func edgeSet(t *testing.T, s *Store, userID string) map[models.Edge]struct{} {
	t.Helper()
	edges, err := s.ListEdges(context.Background(), userID)
	require.NoError(t, err)
	set := make(map[models.Edge]struct{}, len(edges))
	for _, e := range edges {
		set[e] = struct{}{}
	}
	return set
}

func TestStore_ReplaceEdges(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceEdges(ctx, testUser, "note-1", models.RelationTagged, []string{"tag-a", "tag-b"}))
	require.NoError(t, s.ReplaceEdges(ctx, testUser, "note-1", models.RelationTagged, []string{"tag-b", "tag-c"}))

	set := edgeSet(t, s, testUser)
	assert.Len(t, set, 2)
	assert.Contains(t, set, models.Edge{ParentID: "note-1", ChildID: "tag-b", Type: models.RelationTagged})
	assert.Contains(t, set, models.Edge{ParentID: "note-1", ChildID: "tag-c", Type: models.RelationTagged})
}

func TestStore_ReplaceEdgesScopedToRelType(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceEdges(ctx, testUser, "nb-1", models.RelationContains, []string{"note-1"}))
	require.NoError(t, s.ReplaceEdges(ctx, testUser, "nb-1", models.RelationTagged, []string{"tag-a"}))

	// clearing one relation type leaves the other untouched
	require.NoError(t, s.ReplaceEdges(ctx, testUser, "nb-1", models.RelationTagged, nil))

	set := edgeSet(t, s, testUser)
	assert.Len(t, set, 1)
	assert.Contains(t, set, models.Edge{ParentID: "nb-1", ChildID: "note-1", Type: models.RelationContains})
}

func TestStore_ReplaceParent(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceParent(ctx, testUser, "note-1", models.RelationContains, "nb-1"))
	require.NoError(t, s.ReplaceParent(ctx, testUser, "note-1", models.RelationContains, "nb-2"))

	set := edgeSet(t, s, testUser)
	assert.Len(t, set, 1)
	assert.Contains(t, set, models.Edge{ParentID: "nb-2", ChildID: "note-1", Type: models.RelationContains})

	// empty parent deletes the containment edge
	require.NoError(t, s.ReplaceParent(ctx, testUser, "note-1", models.RelationContains, ""))
	assert.Empty(t, edgeSet(t, s, testUser))
}

func TestStore_EnvelopeUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetEnvelope(ctx, testUser)
	assert.ErrorIs(t, err, common.ErrNotFound)

	env := &keyring.Envelope{
		Salt:       []byte("salt"),
		WrappedKey: []byte("wrapped"),
		Nonce:      []byte("nonce"),
		KDF:        "pbkdf2-sha256",
		Iterations: 1000,
		Version:    1,
	}
	require.NoError(t, s.PutEnvelope(ctx, testUser, env))

	got, err := s.GetEnvelope(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, env, got)

	env2 := *env
	env2.Iterations = 2000
	require.NoError(t, s.PutEnvelope(ctx, testUser, &env2))

	got, err = s.GetEnvelope(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2000, got.Iterations)
}

func TestStore_CorruptObject(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.InsertObject(ctx, testUser, models.TypeNote, []byte{0x01, 0x02}, []byte("n"))
	require.NoError(t, err)

	require.True(t, s.CorruptObject(testUser, rec.ID))
	assert.False(t, s.CorruptObject(testUser, "missing"))

	records, err := s.ListObjects(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, []byte{0x01, 0x02}, records[0].Ciphertext)
}
