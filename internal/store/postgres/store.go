// Package postgres implements store.RemoteStore over a PostgreSQL database
// reached through database/sql with the pgx stdlib driver. Every query is
// scoped by user_id; the schema stores nothing but opaque ciphertext plus
// the permitted plaintext columns (id, type, timestamps).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/dbx"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/models"
	"github.com/dkravets/notelock/internal/store/postgres/migrations"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store is a RemoteStore backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, runs pending migrations, and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle without running migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(common.ErrRemoteStore, err))
}

func (s *Store) InsertObject(ctx context.Context, userID string, typ models.ObjectType, ciphertext, nonce []byte) (*models.ObjectRecord, error) {
	query := `
		INSERT INTO encrypted_objects (user_id, type, ciphertext, nonce)
		VALUES ($1, $2, $3, $4)
		RETURNING id, type, ciphertext, nonce, created_at, updated_at
	`
	rec := &models.ObjectRecord{}
	err := s.db.QueryRowContext(ctx, query, userID, string(typ), ciphertext, nonce).
		Scan(&rec.ID, &rec.Type, &rec.Ciphertext, &rec.Nonce, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, remoteErr("failed to insert object", err)
	}
	return rec, nil
}

func (s *Store) UpdateObject(ctx context.Context, userID, id string, ciphertext, nonce []byte) (*models.ObjectRecord, error) {
	query := `
		UPDATE encrypted_objects
		SET ciphertext = $1, nonce = $2, updated_at = now()
		WHERE id = $3 AND user_id = $4
		RETURNING id, type, ciphertext, nonce, created_at, updated_at
	`
	rec := &models.ObjectRecord{}
	err := s.db.QueryRowContext(ctx, query, ciphertext, nonce, id, userID).
		Scan(&rec.ID, &rec.Type, &rec.Ciphertext, &rec.Nonce, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, remoteErr("failed to update object", err)
	}
	return rec, nil
}

func (s *Store) DeleteObject(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM encrypted_objects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return remoteErr("failed to delete object", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return remoteErr("rows affected", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *Store) ListObjects(ctx context.Context, userID string) ([]models.ObjectRecord, error) {
	query := `
		SELECT id, type, ciphertext, nonce, created_at, updated_at
		FROM encrypted_objects
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, remoteErr("failed to select objects", err)
	}
	defer rows.Close()

	var result []models.ObjectRecord
	for rows.Next() {
		var rec models.ObjectRecord
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Ciphertext, &rec.Nonce, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, remoteErr("failed to scan object", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("object rows", err)
	}
	return result, nil
}

// ReplaceEdges deletes all relType edges originating from parentID and
// inserts the new set inside one transaction, so no stale edge survives.
func (s *Store) ReplaceEdges(ctx context.Context, userID, parentID string, relType models.RelationType, childIDs []string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM object_relations WHERE user_id = $1 AND parent_id = $2 AND relation_type = $3`,
			userID, parentID, string(relType))
		if err != nil {
			return err
		}
		for _, childID := range childIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO object_relations (user_id, parent_id, child_id, relation_type)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT DO NOTHING`,
				userID, parentID, childID, string(relType))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return remoteErr("failed to replace edges", err)
	}
	return nil
}

// ReplaceParent deletes all relType edges arriving at childID and inserts
// a single edge from parentID (none when parentID is empty).
func (s *Store) ReplaceParent(ctx context.Context, userID, childID string, relType models.RelationType, parentID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM object_relations WHERE user_id = $1 AND child_id = $2 AND relation_type = $3`,
			userID, childID, string(relType))
		if err != nil {
			return err
		}
		if parentID == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO object_relations (user_id, parent_id, child_id, relation_type)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			userID, parentID, childID, string(relType))
		return err
	})
	if err != nil {
		return remoteErr("failed to replace parent edge", err)
	}
	return nil
}

func (s *Store) ListEdges(ctx context.Context, userID string) ([]models.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parent_id, child_id, relation_type FROM object_relations WHERE user_id = $1`, userID)
	if err != nil {
		return nil, remoteErr("failed to select edges", err)
	}
	defer rows.Close()

	var result []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID, &e.Type); err != nil {
			return nil, remoteErr("failed to scan edge", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("edge rows", err)
	}
	return result, nil
}

func (s *Store) GetEnvelope(ctx context.Context, userID string) (*keyring.Envelope, error) {
	query := `
		SELECT salt, encrypted_master_key, nonce, kdf_id, kdf_iterations, key_version
		FROM user_keys WHERE user_id = $1
	`
	env := &keyring.Envelope{}
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&env.Salt, &env.WrappedKey, &env.Nonce, &env.KDF, &env.Iterations, &env.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, remoteErr("failed to get user key", err)
	}
	return env, nil
}

func (s *Store) PutEnvelope(ctx context.Context, userID string, env *keyring.Envelope) error {
	query := `
		INSERT INTO user_keys (user_id, salt, encrypted_master_key, nonce, kdf_id, kdf_iterations, key_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			salt = EXCLUDED.salt,
			encrypted_master_key = EXCLUDED.encrypted_master_key,
			nonce = EXCLUDED.nonce,
			kdf_id = EXCLUDED.kdf_id,
			kdf_iterations = EXCLUDED.kdf_iterations,
			key_version = EXCLUDED.key_version
	`
	_, err := s.db.ExecContext(ctx, query,
		userID, env.Salt, env.WrappedKey, env.Nonce, env.KDF, env.Iterations, env.Version)
	if err != nil {
		return remoteErr("failed to upsert user key", err)
	}
	return nil
}
