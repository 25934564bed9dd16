// Package keyring manages the key envelope and the per-user session state
// machine. The envelope is the only durable representation of the master
// key: a random 256-bit key wrapped under a passphrase-derived key. If the
// passphrase is lost, the envelope is unrecoverable by design.
package keyring

import (
	"context"
	"errors"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/cryptox"
)

// Envelope is the persisted, passphrase-wrapped representation of the
// master key, stored once per user. Salt is random per user, generated
// once, immutable thereafter.
type Envelope struct {
	Salt       []byte
	WrappedKey []byte
	Nonce      []byte
	KDF        string
	Iterations int
	Version    int
}

// EnvelopeVersion is written into newly created envelopes.
const EnvelopeVersion = 1

// KeyStore is the narrow persistence contract for envelopes (the
// user_keys table of the remote collaborator, upsert-only).
type KeyStore interface {
	// GetEnvelope returns the user's envelope, or common.ErrNotFound if
	// the user has never created one.
	GetEnvelope(ctx context.Context, userID string) (*Envelope, error)

	// PutEnvelope upserts the user's envelope.
	PutEnvelope(ctx context.Context, userID string, env *Envelope) error
}

// Wrap protects masterKey under passKey and packages it with the KDF
// parameters used to derive passKey.
func Wrap(passKey, masterKey, salt []byte, iterations int) (*Envelope, error) {
	wrapped, nonce, err := cryptox.Encrypt(passKey, masterKey)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Salt:       salt,
		WrappedKey: wrapped,
		Nonce:      nonce,
		KDF:        cryptox.KDFID,
		Iterations: iterations,
		Version:    EnvelopeVersion,
	}, nil
}

// Unwrap recovers the master key from env using passKey. An authentication
// failure means the passphrase the key was derived from is wrong; it is
// relabeled as common.ErrIncorrectPassphrase so the caller can show a
// meaningful message. Unwrap never returns corrupted key bytes.
func Unwrap(passKey []byte, env *Envelope) ([]byte, error) {
	masterKey, err := cryptox.Decrypt(passKey, env.WrappedKey, env.Nonce)
	if err != nil {
		if errors.Is(err, cryptox.ErrDecryptionFailed) {
			return nil, common.ErrIncorrectPassphrase
		}
		return nil, err
	}
	return masterKey, nil
}
