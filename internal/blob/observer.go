package blob

import (
	"context"

	"github.com/dkravets/notelock/internal/models"
)

// UserSource supplies the user id the exporter scopes its bucket to.
// Implemented by keyring.Session.
type UserSource interface {
	UserID() string
}

// NoteObserver adapts the exporter to the engine's observer contract:
// note saves upload, deletes remove, resyncs sweep orphans. Every failure
// is logged and swallowed; blob export is an artifact, not a dependency.
type NoteObserver struct {
	exporter *Exporter
	user     UserSource
}

func NewNoteObserver(exporter *Exporter, user UserSource) *NoteObserver {
	return &NoteObserver{exporter: exporter, user: user}
}

func (o *NoteObserver) ObjectSaved(ctx context.Context, rec models.ObjectRecord, _ []models.Edge) {
	if rec.Type != models.TypeNote {
		return
	}
	userID := o.user.UserID()
	if userID == "" {
		return
	}
	if err := o.exporter.EnsureBucket(ctx, userID); err != nil {
		o.exporter.log.Warn(ctx, "blob bucket check failed", "err", err)
		return
	}
	if err := o.exporter.UploadNote(ctx, userID, rec); err != nil {
		o.exporter.log.Warn(ctx, "blob upload failed", "id", rec.ID, "err", err)
	}
}

func (o *NoteObserver) ObjectDeleted(ctx context.Context, id string) {
	userID := o.user.UserID()
	if userID == "" {
		return
	}
	if err := o.exporter.Delete(ctx, userID, id); err != nil {
		o.exporter.log.Warn(ctx, "blob delete failed", "id", id, "err", err)
	}
}

func (o *NoteObserver) Resynced(ctx context.Context, objects []models.ObjectRecord, _ []models.Edge) {
	userID := o.user.UserID()
	if userID == "" {
		return
	}
	live := make(map[string]struct{})
	for _, rec := range objects {
		if rec.Type == models.TypeNote {
			live[rec.ID] = struct{}{}
		}
	}
	o.exporter.Cleanup(ctx, userID, live)
}
