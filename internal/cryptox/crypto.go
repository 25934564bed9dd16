// Package cryptox implements the primitive crypto layer of the sync engine:
// password-based key derivation, authenticated symmetric encryption, and the
// binary↔text codec used wherever key material or ciphertext crosses a text
// boundary. All functions are stateless and operate on bytes and keys only.
//
// Construction: PBKDF2-SHA256 for key derivation, AES-256-GCM with a random
// 12-byte nonce for encryption. Nonces are random rather than counter-based;
// acceptable for the key lifetime and write volume of a single user's notes.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length of symmetric keys in bytes (256 bits).
	KeySize = 32

	// SaltSize is the length of KDF salts in bytes.
	SaltSize = 16

	// NonceSize is the length of GCM nonces in bytes (96 bits).
	NonceSize = 12

	// DefaultIterations is the PBKDF2 iteration count used for new
	// envelopes; MinIterations is the floor below which a deployment
	// must not configure new envelopes.
	DefaultIterations = 210_000
	MinIterations     = 100_000

	// KDFID identifies the key derivation construction in persisted
	// envelopes.
	KDFID = "pbkdf2-sha256"
)

var (
	// ErrDecryptionFailed indicates authentication tag verification failed:
	// the ciphertext or nonce was tampered with, or the wrong key was used.
	ErrDecryptionFailed = errors.New("cryptox: decryption failed")

	// ErrInvalidKeyLength indicates the key is not KeySize bytes.
	ErrInvalidKeyLength = errors.New("cryptox: invalid key length")

	// ErrInvalidNonceLength indicates the nonce is not NonceSize bytes.
	ErrInvalidNonceLength = errors.New("cryptox: invalid nonce length")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the
	// GCM authentication tag.
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// DeriveKey derives a 256-bit key from a passphrase and salt using
// PBKDF2-SHA256 with the given iteration count. Deterministic: identical
// (passphrase, salt, iterations) always yield the same key.
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)
}

// GenerateKey returns a cryptographically secure random 256-bit key.
// Used only for master keys; passphrase keys come from DeriveKey.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptox: key generation failed: %w", err)
	}
	return key, nil
}

// GenerateSalt returns a random per-user KDF salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptox: salt generation failed: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts plaintext under key using AES-256-GCM. A fresh random
// nonce is generated per call and returned alongside the ciphertext; the
// authentication tag is appended to the ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: cipher init failed: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: gcm init failed: %w", err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("cryptox: nonce generation failed: %w", err)
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext under key. Returns ErrDecryptionFailed if the
// authentication tag does not verify; it never returns silently-wrong
// plaintext.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher init failed: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: gcm init failed: %w", err)
	}

	if len(ciphertext) < aesgcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and encrypts it under key.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: payload serialization failed: %w", err)
	}
	return Encrypt(key, plaintext)
}

// DecryptJSON decrypts ciphertext under key and unmarshals the resulting
// JSON into v.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Decrypt(key, ciphertext, nonce)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// EncodeBinary encodes nonce/ciphertext/key material for transport over a
// text boundary. This layer owns the codec so no other component touches
// raw bytes over the wire.
func EncodeBinary(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Wipe overwrites b with zeros. Used to drop key material from memory on
// lock/sign-out. runtime.KeepAlive prevents the writes from being optimized
// away.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
