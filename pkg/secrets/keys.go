package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size of a master key.
	KeySize = 32 // 256 bits for AES-256

	// saltInfo provides domain separation for HKDF key derivation.
	saltInfo = "sessionkit-secrets-v1"
)

// ValidateKey checks that the master key has the correct length.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	return nil
}

// deriveKey binds the master key to a purpose using HKDF.
// The caller must clear the returned key with clearBytes once the AEAD is built.
func deriveKey(key []byte, purpose string) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, key, nil, []byte(saltInfo+":"+purpose))

	derivedKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, derivedKey); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return derivedKey, nil
}

// clearBytes zeros out a byte slice holding key material.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateKey creates a new random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKey renders a key as standard base64, the form DecodeKey accepts.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses a base64 (standard or URL alphabet) master key and
// validates its length.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var urlErr error
		key, urlErr = base64.RawURLEncoding.DecodeString(s)
		if urlErr != nil {
			return nil, errors.Join(ErrInvalidKey, err)
		}
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}
