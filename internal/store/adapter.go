package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/cryptox"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/models"
)

// KeySource supplies the active master key. Implemented by
// keyring.Session.
type KeySource interface {
	Key() ([]byte, uint64, error)
	UserID() string
}

// Adapter translates between plaintext domain payloads and the opaque rows
// of the remote store. It is the only component that encrypts or decrypts
// object payloads; nothing above it sees ciphertext, nothing below it sees
// plaintext.
type Adapter struct {
	remote RemoteStore
	keys   KeySource
	log    logging.Logger
}

func NewAdapter(remote RemoteStore, keys KeySource, log logging.Logger) *Adapter {
	return &Adapter{remote: remote, keys: keys, log: log}
}

// Decrypted is one successfully pulled and decrypted object. Exactly one
// of Note/Notebook/Tag is set, matching Record.Type.
type Decrypted struct {
	Record   models.ObjectRecord
	Note     *models.NotePayload
	Notebook *models.NotebookPayload
	Tag      *models.TagPayload
}

// DecryptFailure reports a single object that could not be decrypted or
// parsed during a bulk pull.
type DecryptFailure struct {
	ID   string
	Type models.ObjectType
	Err  error
}

// PullResult is the partial-failure result of a bulk pull: records that
// decrypted cleanly plus the ids that did not. A corrupt record must not
// abort the pull of all other objects.
type PullResult struct {
	Objects []Decrypted
	Failed  []DecryptFailure
}

// Insert encrypts payload under the active master key and writes a new
// row. Only id, type tag and timestamps cross the boundary in plaintext.
func (a *Adapter) Insert(ctx context.Context, typ models.ObjectType, payload any) (*models.ObjectRecord, error) {
	key, _, err := a.keys.Key()
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cryptox.EncryptJSON(payload, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt failed: %w", err)
	}
	return a.remote.InsertObject(ctx, a.keys.UserID(), typ, ciphertext, nonce)
}

// Update re-encrypts the full payload and overwrites the row for id. No
// field-level patching: every mutation rewrites the entire ciphertext.
func (a *Adapter) Update(ctx context.Context, id string, payload any) (*models.ObjectRecord, error) {
	key, _, err := a.keys.Key()
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cryptox.EncryptJSON(payload, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt failed: %w", err)
	}
	return a.remote.UpdateObject(ctx, a.keys.UserID(), id, ciphertext, nonce)
}

// Delete removes the object row.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return a.remote.DeleteObject(ctx, a.keys.UserID(), id)
}

// ReplaceEdges replaces all relType edges originating from parentID.
func (a *Adapter) ReplaceEdges(ctx context.Context, parentID string, relType models.RelationType, childIDs []string) error {
	return a.remote.ReplaceEdges(ctx, a.keys.UserID(), parentID, relType, childIDs)
}

// ReplaceParent replaces the single relType edge arriving at childID.
func (a *Adapter) ReplaceParent(ctx context.Context, childID string, relType models.RelationType, parentID string) error {
	return a.remote.ReplaceParent(ctx, a.keys.UserID(), childID, relType, parentID)
}

// FetchEdges bulk-pulls all relation edges.
func (a *Adapter) FetchEdges(ctx context.Context) ([]models.Edge, error) {
	return a.remote.ListEdges(ctx, a.keys.UserID())
}

// FetchObjects bulk-pulls and decrypts every object. Records whose
// ciphertext fails authentication or whose plaintext does not parse are
// collected into the failure list instead of failing the sync.
func (a *Adapter) FetchObjects(ctx context.Context) (*PullResult, error) {
	key, _, err := a.keys.Key()
	if err != nil {
		return nil, err
	}

	records, err := a.remote.ListObjects(ctx, a.keys.UserID())
	if err != nil {
		return nil, err
	}

	result := &PullResult{Objects: make([]Decrypted, 0, len(records))}
	for _, rec := range records {
		dec, err := decryptRecord(rec, key)
		if err != nil {
			a.log.Warn(ctx, "object failed to decrypt, skipping",
				"id", rec.ID, "type", string(rec.Type), "err", err)
			result.Failed = append(result.Failed, DecryptFailure{ID: rec.ID, Type: rec.Type, Err: err})
			continue
		}
		result.Objects = append(result.Objects, *dec)
	}
	return result, nil
}

func decryptRecord(rec models.ObjectRecord, key []byte) (*Decrypted, error) {
	plaintext, err := cryptox.Decrypt(key, rec.Ciphertext, rec.Nonce)
	if err != nil {
		return nil, err
	}

	d := &Decrypted{Record: rec}
	switch rec.Type {
	case models.TypeNote:
		d.Note = &models.NotePayload{}
		err = json.Unmarshal(plaintext, d.Note)
	case models.TypeNotebook:
		d.Notebook = &models.NotebookPayload{}
		err = json.Unmarshal(plaintext, d.Notebook)
	case models.TypeTag:
		d.Tag = &models.TagPayload{}
		err = json.Unmarshal(plaintext, d.Tag)
	default:
		err = fmt.Errorf("unknown object type %q", rec.Type)
	}
	if err != nil {
		// Decrypts but does not parse: grouped with decryption failures
		// in the partial-failure list.
		return nil, errors.Join(common.ErrMalformedPayload, err)
	}
	return d, nil
}
