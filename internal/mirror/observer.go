package mirror

import (
	"context"

	"github.com/dkravets/notelock/internal/models"
)

// Observer-shaped entry points used by the engine. Failures are logged and
// swallowed: a stale or absent mirror must never block a core operation.

func (m *Mirror) ObjectSaved(ctx context.Context, rec models.ObjectRecord, edges []models.Edge) {
	if err := m.SaveObject(ctx, rec, edges); err != nil {
		m.log.Warn(ctx, "mirror write-behind failed", "id", rec.ID, "err", err)
	}
}

func (m *Mirror) ObjectDeleted(ctx context.Context, id string) {
	if err := m.RemoveObject(ctx, id); err != nil {
		m.log.Warn(ctx, "mirror delete failed", "id", id, "err", err)
	}
}

func (m *Mirror) Resynced(ctx context.Context, objects []models.ObjectRecord, edges []models.Edge) {
	if err := m.Snapshot(ctx, objects, edges); err != nil {
		m.log.Warn(ctx, "mirror snapshot failed", "err", err)
	}
}
