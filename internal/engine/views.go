package engine

import (
	"sort"
	"strings"

	"github.com/dkravets/notelock/internal/models"
)

// Derived views are pure functions over the current graph snapshot. The
// graph only mutates through the serialized commit path, so recomputing on
// demand is safe and cheap at note-app scale. Listing order is
// most-recently-updated first; ties are don't-care.

// GetNote returns a copy of the note, or nil when unknown.
func (e *Engine) GetNote(id string) *models.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.notes[id]
	if !ok {
		return nil
	}
	out := cloneNote(n)
	return &out
}

// GetNotebook returns a copy of the notebook, or nil when unknown.
func (e *Engine) GetNotebook(id string) *models.Notebook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	nb, ok := e.notebooks[id]
	if !ok {
		return nil
	}
	out := *nb
	return &out
}

// ListNotes returns all notes, most recently updated first.
func (e *Engine) ListNotes() []models.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]models.Note, 0, len(e.notes))
	for _, n := range e.notes {
		result = append(result, cloneNote(n))
	}
	sortByUpdated(result, func(n models.Note) int64 { return n.UpdatedAt.UnixNano() })
	return result
}

// ListNotebooks returns all notebooks, most recently updated first.
func (e *Engine) ListNotebooks() []models.Notebook {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]models.Notebook, 0, len(e.notebooks))
	for _, nb := range e.notebooks {
		result = append(result, *nb)
	}
	sortByUpdated(result, func(nb models.Notebook) int64 { return nb.UpdatedAt.UnixNano() })
	return result
}

// ListTags returns all tags, most recently updated first.
func (e *Engine) ListTags() []models.Tag {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]models.Tag, 0, len(e.tags))
	for _, t := range e.tags {
		result = append(result, *t)
	}
	sortByUpdated(result, func(t models.Tag) int64 { return t.UpdatedAt.UnixNano() })
	return result
}

// NotesInNotebook filters notes by containing notebook.
func (e *Engine) NotesInNotebook(notebookID string) []models.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []models.Note
	for _, n := range e.notes {
		if n.NotebookID == notebookID {
			result = append(result, cloneNote(n))
		}
	}
	sortByUpdated(result, func(n models.Note) int64 { return n.UpdatedAt.UnixNano() })
	return result
}

// NotesWithTag filters notes by attached tag.
func (e *Engine) NotesWithTag(tagID string) []models.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []models.Note
	for _, n := range e.notes {
		for _, id := range n.TagIDs {
			if id == tagID {
				result = append(result, cloneNote(n))
				break
			}
		}
	}
	sortByUpdated(result, func(n models.Note) int64 { return n.UpdatedAt.UnixNano() })
	return result
}

// TagByName looks a tag up by case-insensitive name, the same folding used
// for creation-time dedup. Returns nil when no tag matches.
func (e *Engine) TagByName(name string) *models.Tag {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range e.tags {
		if strings.EqualFold(t.Name, name) {
			out := *t
			return &out
		}
	}
	return nil
}

func sortByUpdated[T any](items []T, updated func(T) int64) {
	sort.Slice(items, func(i, j int) bool {
		return updated(items[i]) > updated(items[j])
	})
}
