// Package common defines shared constants and sentinel errors used across
// the notelock engine layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote store errors. Implementations wrap the driver error so that
	// errors.Is(err, ErrRemoteStore) holds for every failed round-trip.
	ErrRemoteStore = errors.New("remote store error")

	// Session / identity errors.
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrLocked              = errors.New("session locked")
	ErrSessionChanged      = errors.New("session changed")
	ErrIncorrectPassphrase = errors.New("incorrect passphrase")
	ErrPassphraseTooShort  = errors.New("passphrase too short")

	// Payload errors. A decrypted record that does not parse as any known
	// shape is grouped with decryption failures during bulk sync.
	ErrMalformedPayload = errors.New("malformed payload")

	// Engine errors.
	ErrNotReady = errors.New("graph not ready")
)
