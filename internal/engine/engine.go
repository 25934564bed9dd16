// Package engine implements the sync/reconciliation core: a full
// pull-and-decrypt on unlock that rebuilds the in-memory note graph, and
// write-through mutations that re-encrypt the whole payload and rewrite the
// object's relation edges on every change. The remote store is the source
// of truth; the in-memory graph only ever reflects writes the store has
// accepted.
package engine

import (
	"context"
	"sync"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/models"
	"github.com/dkravets/notelock/internal/store"
	"golang.org/x/sync/errgroup"
)

// Observer is notified after committed graph changes. Notifications are
// asynchronous and best-effort; an observer can never fail or block a core
// operation. Observers receive encrypted records only; the mirror and
// blob layers persist ciphertext, never plaintext.
type Observer interface {
	ObjectSaved(ctx context.Context, rec models.ObjectRecord, edges []models.Edge)
	ObjectDeleted(ctx context.Context, id string)
	Resynced(ctx context.Context, objects []models.ObjectRecord, edges []models.Edge)
}

// SyncReport summarizes a full sync: how many objects decrypted cleanly
// and which did not. A corrupt record is reported, not fatal.
type SyncReport struct {
	Objects int
	Failed  []store.DecryptFailure
}

// Engine orchestrates the session key, the encrypted store adapter, and
// the in-memory graph.
type Engine struct {
	session *keyring.Session
	adapter *store.Adapter
	log     logging.Logger

	mu        sync.RWMutex
	ready     bool
	notes     map[string]*models.Note
	notebooks map[string]*models.Notebook
	tags      map[string]*models.Tag

	obsMu     sync.Mutex
	observers []Observer
}

func New(session *keyring.Session, adapter *store.Adapter, log logging.Logger) *Engine {
	return &Engine{
		session:   session,
		adapter:   adapter,
		log:       log,
		notes:     make(map[string]*models.Note),
		notebooks: make(map[string]*models.Notebook),
		tags:      make(map[string]*models.Tag),
	}
}

// Subscribe registers an observer for committed graph changes.
func (e *Engine) Subscribe(obs Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, obs)
}

// Ready reports whether a full sync has completed for the active session.
// No mutation is valid before this.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Reset discards the decrypted graph. Called when the session locks or the
// authenticated user changes.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.notes = make(map[string]*models.Note)
	e.notebooks = make(map[string]*models.Notebook)
	e.tags = make(map[string]*models.Tag)
}

// Refresh performs a full sync: pull all objects and edges concurrently,
// decrypt, resolve relations from the edge table, and swap in the
// assembled graph. Relations resolved here override anything a stale
// payload might claim: containment and tagging live in the edge table
// only.
func (e *Engine) Refresh(ctx context.Context) (*SyncReport, error) {
	_, epoch, err := e.session.Key()
	if err != nil {
		return nil, err
	}

	var pull *store.PullResult
	var edges []models.Edge

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pull, err = e.adapter.FetchObjects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = e.adapter.FetchEdges(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// note id -> notebook id. A note has at most one containment edge; if
	// duplicates exist anyway, the last one observed wins; never crash.
	noteNotebook := make(map[string]string)
	// note id -> tag ids, accumulated.
	noteTags := make(map[string][]string)
	for _, ed := range edges {
		switch ed.Type {
		case models.RelationContains:
			noteNotebook[ed.ChildID] = ed.ParentID
		case models.RelationTagged:
			noteTags[ed.ParentID] = append(noteTags[ed.ParentID], ed.ChildID)
		}
	}

	notes := make(map[string]*models.Note)
	notebooks := make(map[string]*models.Notebook)
	tags := make(map[string]*models.Tag)
	var records []models.ObjectRecord

	for _, d := range pull.Objects {
		rec := d.Record
		records = append(records, rec)
		switch {
		case d.Notebook != nil:
			notebooks[rec.ID] = &models.Notebook{
				ID: rec.ID, Name: d.Notebook.Name,
				CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
			}
		case d.Tag != nil:
			tags[rec.ID] = &models.Tag{
				ID: rec.ID, Name: d.Tag.Name,
				CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
			}
		case d.Note != nil:
			notes[rec.ID] = &models.Note{
				ID:                rec.ID,
				Title:             d.Note.Title,
				Content:           d.Note.Content,
				Pinned:            d.Note.Pinned,
				Starred:           d.Note.Starred,
				Archived:          d.Note.Archived,
				IsTemplate:        d.Note.IsTemplate,
				TemplateVariables: d.Note.TemplateVariables,
				CreatedAt:         rec.CreatedAt,
				UpdatedAt:         rec.UpdatedAt,
			}
		}
	}

	// Resolve relations. An edge whose parent no longer resolves to a live
	// object is treated as "no relation", not an error.
	for id, n := range notes {
		if nbID, ok := noteNotebook[id]; ok {
			if _, live := notebooks[nbID]; live {
				n.NotebookID = nbID
			}
		}
		for _, tagID := range noteTags[id] {
			if _, live := tags[tagID]; live {
				n.TagIDs = append(n.TagIDs, tagID)
			}
		}
	}

	e.mu.Lock()
	if !e.session.StillActive(epoch) {
		e.mu.Unlock()
		return nil, common.ErrSessionChanged
	}
	e.notes = notes
	e.notebooks = notebooks
	e.tags = tags
	e.ready = true
	e.mu.Unlock()

	e.log.Info(ctx, "full sync finished",
		"objects", len(pull.Objects), "edges", len(edges), "failed", len(pull.Failed))

	e.notify(ctx, func(ctx context.Context, obs Observer) {
		obs.Resynced(ctx, records, edges)
	})

	return &SyncReport{Objects: len(pull.Objects), Failed: pull.Failed}, nil
}

// begin gates a mutation on Unlocked + Ready and captures the session
// epoch so the result can be discarded if the session ends mid-flight.
func (e *Engine) begin() (uint64, error) {
	_, epoch, err := e.session.Key()
	if err != nil {
		return 0, err
	}
	if !e.Ready() {
		return 0, common.ErrNotReady
	}
	return epoch, nil
}

// commit applies fn to the graph unless the session has locked or switched
// users since epoch was captured.
func (e *Engine) commit(epoch uint64, fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.StillActive(epoch) {
		return common.ErrSessionChanged
	}
	fn()
	return nil
}

func (e *Engine) notify(ctx context.Context, fn func(ctx context.Context, obs Observer)) {
	e.obsMu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()

	bg := context.WithoutCancel(ctx)
	for _, obs := range observers {
		go fn(bg, obs)
	}
}

func (e *Engine) notifySaved(ctx context.Context, rec models.ObjectRecord, edges []models.Edge) {
	e.notify(ctx, func(ctx context.Context, obs Observer) {
		obs.ObjectSaved(ctx, rec, edges)
	})
}

func (e *Engine) notifyDeleted(ctx context.Context, id string) {
	e.notify(ctx, func(ctx context.Context, obs Observer) {
		obs.ObjectDeleted(ctx, id)
	})
}

// noteEdges builds the canonical edge set of a note from its committed
// in-memory form.
func noteEdges(n *models.Note) []models.Edge {
	var edges []models.Edge
	if n.NotebookID != "" {
		edges = append(edges, models.Edge{ParentID: n.NotebookID, ChildID: n.ID, Type: models.RelationContains})
	}
	for _, tagID := range n.TagIDs {
		edges = append(edges, models.Edge{ParentID: n.ID, ChildID: tagID, Type: models.RelationTagged})
	}
	return edges
}

// CreateNotebook creates an empty container.
func (e *Engine) CreateNotebook(ctx context.Context, name string) (*models.Notebook, error) {
	epoch, err := e.begin()
	if err != nil {
		return nil, err
	}

	payload := models.NotebookPayload{Version: models.PayloadVersion, Name: name}
	rec, err := e.adapter.Insert(ctx, models.TypeNotebook, payload)
	if err != nil {
		return nil, err
	}

	nb := &models.Notebook{ID: rec.ID, Name: name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	if err := e.commit(epoch, func() { e.notebooks[nb.ID] = nb }); err != nil {
		return nil, err
	}
	e.notifySaved(ctx, *rec, nil)

	out := *nb
	return &out, nil
}

// RenameNotebook re-encrypts the notebook payload with the new name.
func (e *Engine) RenameNotebook(ctx context.Context, id, name string) (*models.Notebook, error) {
	epoch, err := e.begin()
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	_, ok := e.notebooks[id]
	e.mu.RUnlock()
	if !ok {
		return nil, common.ErrNotFound
	}

	payload := models.NotebookPayload{Version: models.PayloadVersion, Name: name}
	rec, err := e.adapter.Update(ctx, id, payload)
	if err != nil {
		return nil, err
	}

	nb := &models.Notebook{ID: rec.ID, Name: name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	if err := e.commit(epoch, func() { e.notebooks[id] = nb }); err != nil {
		return nil, err
	}
	e.notifySaved(ctx, *rec, nil)

	out := *nb
	return &out, nil
}

// CreateTag creates a tag, deduplicated by case-insensitive name: when a
// tag with the same folded name already exists, its id is returned and no
// row is written.
func (e *Engine) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	epoch, err := e.begin()
	if err != nil {
		return nil, err
	}

	if existing := e.TagByName(name); existing != nil {
		return existing, nil
	}

	payload := models.TagPayload{Version: models.PayloadVersion, Name: name}
	rec, err := e.adapter.Insert(ctx, models.TypeTag, payload)
	if err != nil {
		return nil, err
	}

	tag := &models.Tag{ID: rec.ID, Name: name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	if err := e.commit(epoch, func() { e.tags[tag.ID] = tag }); err != nil {
		return nil, err
	}
	e.notifySaved(ctx, *rec, nil)

	out := *tag
	return &out, nil
}

// CreateNote creates an empty note, optionally placing it into a notebook
// with an immediate containment edge.
func (e *Engine) CreateNote(ctx context.Context, notebookID string) (*models.Note, error) {
	epoch, err := e.begin()
	if err != nil {
		return nil, err
	}

	if notebookID != "" {
		e.mu.RLock()
		_, ok := e.notebooks[notebookID]
		e.mu.RUnlock()
		if !ok {
			return nil, common.ErrNotFound
		}
	}

	payload := models.NotePayload{Version: models.PayloadVersion}
	rec, err := e.adapter.Insert(ctx, models.TypeNote, payload)
	if err != nil {
		return nil, err
	}

	if notebookID != "" {
		if err := e.adapter.ReplaceParent(ctx, rec.ID, models.RelationContains, notebookID); err != nil {
			return nil, err
		}
	}

	n := &models.Note{ID: rec.ID, NotebookID: notebookID, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	if err := e.commit(epoch, func() { e.notes[n.ID] = n }); err != nil {
		return nil, err
	}
	e.notifySaved(ctx, *rec, noteEdges(n))

	out := cloneNote(n)
	return &out, nil
}

// UpdateNote re-encrypts the full note payload, writes it through, and
// then rewrites the note's relation edges from scratch: the containment
// edge (deleted, reinserted when NotebookID is set) and the tagged edges,
// replaced to exactly match TagIDs. The caller's TagIDs slice is
// authoritative: a tag absent from it is detached, not left alone. The
// in-memory graph is updated only after every remote write succeeded.
func (e *Engine) UpdateNote(ctx context.Context, n models.Note) (*models.Note, error) {
	epoch, err := e.begin()
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	_, ok := e.notes[n.ID]
	nbOK := n.NotebookID == ""
	if !nbOK {
		_, nbOK = e.notebooks[n.NotebookID]
	}
	e.mu.RUnlock()
	if !ok || !nbOK {
		return nil, common.ErrNotFound
	}

	rec, err := e.adapter.Update(ctx, n.ID, n.Payload())
	if err != nil {
		return nil, err
	}
	if err := e.adapter.ReplaceParent(ctx, n.ID, models.RelationContains, n.NotebookID); err != nil {
		return nil, err
	}
	if err := e.adapter.ReplaceEdges(ctx, n.ID, models.RelationTagged, n.TagIDs); err != nil {
		return nil, err
	}

	updated := n
	updated.CreatedAt = rec.CreatedAt
	updated.UpdatedAt = rec.UpdatedAt
	updated.TemplateVariables = append([]string(nil), n.TemplateVariables...)
	updated.TagIDs = append([]string(nil), n.TagIDs...)

	if err := e.commit(epoch, func() { e.notes[n.ID] = &updated }); err != nil {
		return nil, err
	}
	e.notifySaved(ctx, *rec, noteEdges(&updated))

	out := cloneNote(&updated)
	return &out, nil
}

// DeleteNote removes the note row and cleans up the edges it participates
// in. Readers tolerate any edge that dangles in between.
func (e *Engine) DeleteNote(ctx context.Context, id string) error {
	epoch, err := e.begin()
	if err != nil {
		return err
	}

	if err := e.adapter.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.adapter.ReplaceParent(ctx, id, models.RelationContains, ""); err != nil {
		return err
	}
	if err := e.adapter.ReplaceEdges(ctx, id, models.RelationTagged, nil); err != nil {
		return err
	}

	if err := e.commit(epoch, func() { delete(e.notes, id) }); err != nil {
		return err
	}
	e.notifyDeleted(ctx, id)
	return nil
}

// DeleteNotebook removes the container. Notes previously contained in it
// lose their NotebookID immediately in memory, and structurally after the
// next full sync: a containment edge whose parent no longer resolves reads
// as "no notebook".
func (e *Engine) DeleteNotebook(ctx context.Context, id string) error {
	epoch, err := e.begin()
	if err != nil {
		return err
	}

	if err := e.adapter.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.adapter.ReplaceEdges(ctx, id, models.RelationContains, nil); err != nil {
		return err
	}

	if err := e.commit(epoch, func() {
		delete(e.notebooks, id)
		for _, n := range e.notes {
			if n.NotebookID == id {
				n.NotebookID = ""
			}
		}
	}); err != nil {
		return err
	}
	e.notifyDeleted(ctx, id)
	return nil
}

// DeleteTag removes the tag and detaches it from every note.
func (e *Engine) DeleteTag(ctx context.Context, id string) error {
	epoch, err := e.begin()
	if err != nil {
		return err
	}

	if err := e.adapter.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.adapter.ReplaceParent(ctx, id, models.RelationTagged, ""); err != nil {
		return err
	}

	if err := e.commit(epoch, func() {
		delete(e.tags, id)
		for _, n := range e.notes {
			n.TagIDs = removeID(n.TagIDs, id)
		}
	}); err != nil {
		return err
	}
	e.notifyDeleted(ctx, id)
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneNote(n *models.Note) models.Note {
	out := *n
	out.TemplateVariables = append([]string(nil), n.TemplateVariables...)
	out.TagIDs = append([]string(nil), n.TagIDs...)
	return out
}
