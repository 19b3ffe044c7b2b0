// Package secrets is the encrypt-on-write, decrypt-on-read boundary for
// connector credentials (connection strings, OAuth tokens). Entities never
// see plaintext; callers ask this store to open a credential at the moment
// of use. A decrypt failure is terminal for that connector's operation and
// is never retried.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Store seals and opens credential strings with an XChaCha20-Poly1305 key.
type Store struct {
	key []byte
}

// NewStore validates the key length and returns a Store.
func NewStore(key []byte) (*Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Store{key: key}, nil
}

// Encrypt seals plaintext and returns a base64 string safe for column storage.
// The random nonce is prepended to the ciphertext.
func (s *Store) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed credential produced by Encrypt.
func (s *Store) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("credential too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return string(plaintext), nil
}
