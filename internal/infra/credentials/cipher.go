// Package credentials seals third-party secrets (WordPress application
// passwords, Threads tokens) before they are written to user documents.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	PurposeWordPress = "wordpress"
	PurposeThreads   = "threads"

	sealedPrefix = "v1:"
)

var ErrInvalidSealed = errors.New("credentials: invalid sealed value")

// Cipher encrypts secrets with XChaCha20-Poly1305. The owner id and purpose
// are bound as associated data so a sealed value cannot be moved between
// users or integrations.
type Cipher struct {
	key []byte
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials: key must be %d bytes", chacha20poly1305.KeySize)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Cipher{key: k}, nil
}

// Seal encrypts plaintext for ownerID and purpose.
func (c *Cipher) Seal(ownerID, purpose, plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return "", errors.New("credentials: secret is required")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credentials: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), associatedData(ownerID, purpose))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same owner and purpose.
func (c *Cipher) Open(ownerID, purpose, sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrInvalidSealed
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSealed
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalidSealed
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, associatedData(ownerID, purpose))
	if err != nil {
		return "", ErrInvalidSealed
	}
	return string(plain), nil
}

func associatedData(ownerID, purpose string) []byte {
	return []byte(purpose + "\x00" + ownerID)
}
