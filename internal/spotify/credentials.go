package spotify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// Fixed HKDF parameters bind derived keys to this use. Changing either
	// invalidates every stored credential.
	credentialSalt = "playlift-provider-credentials"
	credentialInfo = "credential-cipher-v1"

	cipherKeySize = 32
)

// TokenCipher protects provider refresh credentials at rest with
// AES-256-GCM. The key is derived from the configured secret via HKDF-SHA256.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the cipher key from the given secret.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, errors.New("credential secret is required")
	}

	key := make([]byte, cipherKeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(credentialSalt), []byte(credentialInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive cipher key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("plaintext is empty")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An empty input maps to ErrNoCredential so
// callers can treat "never stored" and "stored but unusable" the same way.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrNoCredential
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode credential: %w", err)
	}
	if len(data) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", errors.New("credential ciphertext too short")
	}

	nonce, sealed := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return string(plaintext), nil
}
