package models

import "time"

// Note is the assembled in-memory form of a note: decrypted payload plus
// the relations resolved from the edge table at sync time. NotebookID is
// empty when the note is in no notebook (including when its containing
// notebook has been deleted and the edge dangles).
type Note struct {
	ID                string
	Title             string
	Content           string
	Pinned            bool
	Starred           bool
	Archived          bool
	IsTemplate        bool
	TemplateVariables []string
	NotebookID        string
	TagIDs            []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Notebook is a container for notes.
type Notebook struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag is a label attached to notes, deduplicated by case-insensitive name
// at creation time.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payload returns the encryptable portion of the note. Relations are not
// part of the payload.
func (n *Note) Payload() NotePayload {
	return NotePayload{
		Version:           PayloadVersion,
		Title:             n.Title,
		Content:           n.Content,
		Pinned:            n.Pinned,
		Starred:           n.Starred,
		Archived:          n.Archived,
		IsTemplate:        n.IsTemplate,
		TemplateVariables: n.TemplateVariables,
	}
}
