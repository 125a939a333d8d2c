// Package crypto wraps AES-256-GCM the way the rest of the module uses it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	Algorithm = "AES-256-GCM"
)

var (
	ErrInvalidKeySize     = errors.New("invalid key size")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// NewAEAD builds an AES-256-GCM AEAD from a 32-byte key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key length must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// GenerateKey returns KeySize bytes from crypto/rand.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// SealPrefixed encrypts plaintext with a fresh nonce and returns nonce||ciphertext.
func SealPrefixed(aead cipher.AEAD, plaintext, aad []byte) ([]byte, error) {
	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// OpenPrefixed reverses SealPrefixed.
func OpenPrefixed(aead cipher.AEAD, data, aad []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	if len(data) < nonceSize+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return aead.Open(nil, data[:nonceSize], data[nonceSize:], aad)
}

// Fingerprint identifies a key in diagnostics without revealing it.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
