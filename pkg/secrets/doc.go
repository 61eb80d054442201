// Package secrets provides authenticated symmetric encryption for opaque
// payloads such as serialized session records.
//
// A Cipher derives a purpose-bound 32-byte key from a master key using
// HKDF-SHA-256 and seals data with AES-256 in GCM mode. The nonce is
// prepended to the ciphertext so every sealed payload is self-contained.
//
// # Usage
//
//	import "github.com/dmitrymomot/sessionkit/pkg/secrets"
//
//	key, _ := secrets.DecodeKey(os.Getenv("SESSION_ENCRYPTION_KEY"))
//	c, err := secrets.NewCipher(key, "session")
//	if err != nil {
//	    // handle error
//	}
//
//	sealed, _ := c.Encrypt([]byte(`{"id":"..."}`))
//	plain, err := c.Decrypt(sealed)
//
// # Error Handling
//
// All errors wrap a sentinel such as ErrDecryptionFailed or
// ErrInvalidCiphertext. Use errors.Is to match them. Decrypt never returns
// partially decrypted data.
package secrets
