package secrets

import "errors"

var (
	// ErrInvalidKey indicates the master key is not KeySize bytes long.
	ErrInvalidKey = errors.New("invalid key: must be 32 bytes")

	// Encryption/decryption errors
	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// Key derivation errors
	ErrKeyDerivationFailed = errors.New("key derivation failed")
)
