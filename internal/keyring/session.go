package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/cryptox"
	"github.com/dkravets/notelock/internal/logging"
)

// State is the session state machine: Locked | Unlocking | Unlocked.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// MinPassphraseLen is the minimum passphrase length in characters, not
// bytes. Validated before any derivation is attempted, a cheap
// precondition check ahead of the expensive KDF.
const MinPassphraseLen = 8

// Session holds the active master key and the authenticated user identity.
// The key is written only by Unlock/Lock transitions and is immutable in
// between; every transition bumps the epoch so that in-flight results can
// be checked against "is this still the active session" before being
// committed.
type Session struct {
	keys       KeyStore
	log        logging.Logger
	iterations int

	mu        sync.RWMutex
	state     State
	userID    string
	masterKey []byte
	epoch     uint64
}

// NewSession constructs a locked session backed by the given envelope
// store. iterations is the PBKDF2 cost used when creating new envelopes;
// zero selects cryptox.DefaultIterations, and values below
// cryptox.MinIterations are raised to the floor. Existing envelopes are
// honored at their persisted cost regardless.
func NewSession(keys KeyStore, log logging.Logger, iterations int) *Session {
	switch {
	case iterations <= 0:
		iterations = cryptox.DefaultIterations
	case iterations < cryptox.MinIterations:
		iterations = cryptox.MinIterations
	}
	return &Session{keys: keys, log: log, iterations: iterations, state: Locked}
}

// SetUser records the authenticated user identity. Changing the identity
// locks the session first; re-asserting the same identity (a token
// refresh, a tab regaining focus) is a no-op and must NOT drop the key.
func (s *Session) SetUser(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == userID {
		return
	}
	if s.userID != "" {
		s.log.Info(ctx, "user identity changed, locking session", "state", s.state.String())
	}
	s.lockLocked()
	s.userID = userID
}

// SignOut drops the identity and the key.
func (s *Session) SignOut(ctx context.Context) {
	s.SetUser(ctx, "")
}

// UserID returns the authenticated user identity, which may be set while
// the session is still locked.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// State returns the current state of the session state machine.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Unlock derives the passphrase key and brings the master key into memory.
//
// First unlock (no envelope stored): generates a salt and a random master
// key, wraps the master key under the passphrase key, and persists the
// envelope. Subsequent unlocks: derives from the stored salt and unwraps,
// failing with common.ErrIncorrectPassphrase when the passphrase does not
// match.
func (s *Session) Unlock(ctx context.Context, passphrase []byte) error {
	if utf8.RuneCount(passphrase) < MinPassphraseLen {
		return common.ErrPassphraseTooShort
	}

	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return common.ErrNotAuthenticated
	}
	if s.state == Unlocked {
		s.mu.Unlock()
		return nil
	}
	s.state = Unlocking
	userID := s.userID
	startEpoch := s.epoch
	s.mu.Unlock()

	masterKey, err := s.obtainMasterKey(ctx, userID, passphrase)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Identity may have switched while the KDF or the store round-trip was
	// in flight; the obtained key belongs to the old session then.
	if s.epoch != startEpoch || s.userID != userID {
		if masterKey != nil {
			cryptox.Wipe(masterKey)
		}
		if s.state == Unlocking {
			s.state = Locked
		}
		return common.ErrSessionChanged
	}

	if err != nil {
		s.state = Locked
		return err
	}

	s.masterKey = masterKey
	s.state = Unlocked
	s.epoch++
	s.log.Info(ctx, "session unlocked")
	return nil
}

// obtainMasterKey runs the expensive part of Unlock without holding the
// session lock: KDF, envelope fetch/creation, unwrap.
func (s *Session) obtainMasterKey(ctx context.Context, userID string, passphrase []byte) ([]byte, error) {
	env, err := s.keys.GetEnvelope(ctx, userID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return s.createEnvelope(ctx, userID, passphrase)
	case err != nil:
		return nil, fmt.Errorf("envelope fetch failed: %w", err)
	}

	if env.Iterations <= 0 {
		return nil, fmt.Errorf("envelope has invalid kdf cost: %d", env.Iterations)
	}

	passKey := cryptox.DeriveKey(passphrase, env.Salt, env.Iterations)
	defer cryptox.Wipe(passKey)

	return Unwrap(passKey, env)
}

func (s *Session) createEnvelope(ctx context.Context, userID string, passphrase []byte) ([]byte, error) {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, err
	}

	passKey := cryptox.DeriveKey(passphrase, salt, s.iterations)
	defer cryptox.Wipe(passKey)

	masterKey, err := cryptox.GenerateKey()
	if err != nil {
		return nil, err
	}

	env, err := Wrap(passKey, masterKey, salt, s.iterations)
	if err != nil {
		cryptox.Wipe(masterKey)
		return nil, err
	}

	if err := s.keys.PutEnvelope(ctx, userID, env); err != nil {
		cryptox.Wipe(masterKey)
		return nil, fmt.Errorf("envelope persist failed: %w", err)
	}

	s.log.Info(ctx, "envelope created", "kdf", env.KDF, "iterations", env.Iterations)
	return masterKey, nil
}

// Lock wipes the master key and returns to Locked. Safe to call in any
// state.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

func (s *Session) lockLocked() {
	if s.masterKey != nil {
		cryptox.Wipe(s.masterKey)
		s.masterKey = nil
	}
	if s.state != Locked {
		s.state = Locked
		s.epoch++
	}
}

// Key returns the active master key and the epoch it belongs to, or
// common.ErrLocked when no key is in memory. Callers must treat the key as
// read-only and re-check the epoch with StillActive before committing
// results obtained after a suspension point.
func (s *Session) Key() ([]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Unlocked {
		return nil, 0, common.ErrLocked
	}
	return s.masterKey, s.epoch, nil
}

// Epoch returns the current session epoch.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// StillActive reports whether the session has neither locked nor switched
// users since epoch was observed.
func (s *Session) StillActive(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Unlocked && s.epoch == epoch
}
