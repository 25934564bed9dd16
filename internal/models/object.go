// Package models defines the domain objects of the note graph and the
// opaque records they are stored as. Sensitive fields exist at rest only as
// {nonce, ciphertext} pairs; the plaintext forms in this package live in
// memory for the duration of an unlocked session.
package models

import "time"

// ObjectType tags a row in the encrypted object table. The type tag, id and
// timestamps are the only plaintext columns permitted at the storage
// boundary.
type ObjectType string

const (
	TypeNote     ObjectType = "note"
	TypeNotebook ObjectType = "notebook"
	TypeTag      ObjectType = "tag"
)

// RelationType tags a row in the relation edge table.
type RelationType string

const (
	// RelationContains links a notebook (parent) to a note (child).
	// A note has at most one containing notebook.
	RelationContains RelationType = "contains"

	// RelationTagged links a note (parent) to a tag (child).
	RelationTagged RelationType = "tagged"
)

// ObjectRecord is one encrypted row as stored remotely.
type ObjectRecord struct {
	ID         string
	Type       ObjectType
	Ciphertext []byte
	Nonce      []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is one relation row. Structural relations are modeled as edges
// rather than embedded foreign keys because the object table is opaque to
// the server and cannot enforce typed references against encrypted
// payloads.
type Edge struct {
	ParentID string
	ChildID  string
	Type     RelationType
}
