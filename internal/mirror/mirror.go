// Package mirror implements the best-effort local write-behind cache: a
// sqlite copy of the encrypted object and edge rows, plus timestamped named
// backups with keep-most-recent-N pruning. The mirror is advisory only: it
// is never consulted to decide whether a remote write succeeded, and it
// stores ciphertext exclusively, so plaintext never reaches disk.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkravets/notelock/internal/dbx"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/mirror/migrations"
	"github.com/dkravets/notelock/internal/models"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DefaultKeep is how many named backups Prune retains by default.
const DefaultKeep = 10

// Mirror persists encrypted snapshots of the remote store into a local
// sqlite database.
type Mirror struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (or creates) the mirror database at dsn and applies pending
// migrations.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Mirror, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror open failed: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}
	return &Mirror{db: db, log: log}, nil
}

// New wraps an existing handle without running migrations.
func New(db *sql.DB, log logging.Logger) *Mirror {
	return &Mirror{db: db, log: log}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the underlying database handle.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Snapshot replaces the entire mirror content with the given rows, in one
// transaction.
func (m *Mirror) Snapshot(ctx context.Context, objects []models.ObjectRecord, edges []models.Edge) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
			return fmt.Errorf("failed to clear objects: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		for _, rec := range objects {
			if err := upsertObject(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, e := range edges {
			if err := insertEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertObject(ctx context.Context, tx dbx.DBTX, rec models.ObjectRecord) error {
	query := `
		INSERT INTO objects (id, type, ciphertext, nonce, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		rec.ID, string(rec.Type), rec.Ciphertext, rec.Nonce, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert object: %w", err)
	}
	return nil
}

func insertEdge(ctx context.Context, tx dbx.DBTX, e models.Edge) error {
	query := `
		INSERT INTO edges (parent_id, child_id, relation_type)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, query, e.ParentID, e.ChildID, string(e.Type)); err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// SaveObject upserts a single encrypted row and rewrites the edges it
// participates in.
func (m *Mirror) SaveObject(ctx context.Context, rec models.ObjectRecord, edges []models.Edge) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := upsertObject(ctx, tx, rec); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM edges WHERE parent_id = ? OR child_id = ?`, rec.ID, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to clear object edges: %w", err)
		}
		for _, e := range edges {
			if err := insertEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveObject deletes the row and any edges referring to it.
func (m *Mirror) RemoveObject(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete object: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM edges WHERE parent_id = ? OR child_id = ?`, id, id); err != nil {
			return fmt.Errorf("failed to delete object edges: %w", err)
		}
		return nil
	})
}

// Backup is one named snapshot row.
type Backup struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// backupSnapshot is the serialized form stored in the snapshot column.
// []byte fields round-trip through the standard JSON base64 encoding.
type backupSnapshot struct {
	Objects []models.ObjectRecord `json:"objects"`
	Edges   []models.Edge         `json:"edges"`
}

// CreateBackup freezes the current mirror content into a timestamped named
// backup and returns its metadata.
func (m *Mirror) CreateBackup(ctx context.Context, name string) (*Backup, error) {
	objects, edges, err := m.readAll(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(backupSnapshot{Objects: objects, Edges: edges})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup: %w", err)
	}

	now := time.Now().UTC()
	b := &Backup{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s-%s", name, now.Format("20060102-150405")),
		CreatedAt: now,
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO backups (id, name, created_at, snapshot) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.CreatedAt, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to insert backup: %w", err)
	}
	return b, nil
}

// ListBackups returns backup metadata, newest first.
func (m *Mirror) ListBackups(ctx context.Context) ([]Backup, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM backups ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select backups: %w", err)
	}
	defer rows.Close()

	var result []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Prune deletes all but the most recent keep backups. keep <= 0 selects
// DefaultKeep.
func (m *Mirror) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = DefaultKeep
	}
	query := `
		DELETE FROM backups WHERE id NOT IN (
			SELECT id FROM backups ORDER BY created_at DESC, id LIMIT ?
		)
	`
	if _, err := m.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("failed to prune backups: %w", err)
	}
	return nil
}

func (m *Mirror) readAll(ctx context.Context) ([]models.ObjectRecord, []models.Edge, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, type, ciphertext, nonce, created_at, updated_at FROM objects`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select objects: %w", err)
	}
	defer rows.Close()

	var objects []models.ObjectRecord
	for rows.Next() {
		var rec models.ObjectRecord
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Ciphertext, &rec.Nonce, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan object: %w", err)
		}
		objects = append(objects, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	edgeRows, err := m.db.QueryContext(ctx, `SELECT parent_id, child_id, relation_type FROM edges`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []models.Edge
	for edgeRows.Next() {
		var e models.Edge
		if err := edgeRows.Scan(&e.ParentID, &e.ChildID, &e.Type); err != nil {
			return nil, nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, nil, err
	}
	return objects, edges, nil
}
