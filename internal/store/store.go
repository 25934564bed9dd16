// Package store defines the narrow contract of the remote encrypted-object
// collaborator and the adapter that maps typed domain objects to and from
// opaque encrypted records. The remote store sees two tables (opaque
// objects and typed relation edges) plus the per-user key envelope row;
// it never sees plaintext.
package store

import (
	"context"

	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/models"
)

// RemoteStore is the contract implemented by remote backends. All rows are
// scoped to the authenticated user; implementations wrap transport/driver
// failures with common.ErrRemoteStore.
type RemoteStore interface {
	keyring.KeyStore

	// InsertObject writes a new opaque row with a server-assigned id and
	// server-assigned timestamps and returns the stored record.
	InsertObject(ctx context.Context, userID string, typ models.ObjectType, ciphertext, nonce []byte) (*models.ObjectRecord, error)

	// UpdateObject overwrites ciphertext and nonce for an existing id and
	// refreshes the updated timestamp. It does not create a new row;
	// common.ErrNotFound is returned for an unknown id.
	UpdateObject(ctx context.Context, userID, id string, ciphertext, nonce []byte) (*models.ObjectRecord, error)

	// DeleteObject removes the row. Edge cleanup is the caller's
	// responsibility; edges referring to a deleted id dangle and readers
	// tolerate them as "no relation".
	DeleteObject(ctx context.Context, userID, id string) error

	// ListObjects bulk-pulls every row for the user, most recently
	// updated first. Used only at full-sync time.
	ListObjects(ctx context.Context, userID string) ([]models.ObjectRecord, error)

	// ReplaceEdges replaces all edges of relType originating from
	// parentID: delete-matching then insert-new, not diffed, so no stale
	// edge can survive a crash mid-update.
	ReplaceEdges(ctx context.Context, userID, parentID string, relType models.RelationType, childIDs []string) error

	// ReplaceParent replaces all relType edges arriving at childID with a
	// single edge from parentID. An empty parentID just deletes; used for
	// the at-most-one containment edge of a note.
	ReplaceParent(ctx context.Context, userID, childID string, relType models.RelationType, parentID string) error

	// ListEdges bulk-pulls every edge for the user.
	ListEdges(ctx context.Context, userID string) ([]models.Edge, error)
}
