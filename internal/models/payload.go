package models

// Versioned plaintext payload shapes, serialized to canonical JSON before
// encryption. Decoding is forward-compatible: fields missing from an older
// payload keep their documented zero-value defaults (pinned=false,
// starred=false, archived=false, is_template=false, empty template
// variables) instead of rejecting the record. New optional fields must
// never break old data.
//
// Containment and tagging are deliberately absent here: notebook and tag
// references live in the relation edge table, not inside the note's
// ciphertext.

// PayloadVersion is written into every newly encrypted payload.
const PayloadVersion = 1

// NotePayload is the encrypted portion of a note.
type NotePayload struct {
	Version           int      `json:"version"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Pinned            bool     `json:"pinned,omitempty"`
	Starred           bool     `json:"starred,omitempty"`
	Archived          bool     `json:"archived,omitempty"`
	IsTemplate        bool     `json:"is_template,omitempty"`
	TemplateVariables []string `json:"template_variables,omitempty"`
}

// NotebookPayload is the encrypted portion of a notebook.
type NotebookPayload struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

// TagPayload is the encrypted portion of a tag.
type TagPayload struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}
