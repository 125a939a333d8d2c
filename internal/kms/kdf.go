package kms

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/spounge-ai/medvault/internal/domain"
	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands masterKey into keyLength bytes with HKDF-SHA256. Distinct
// info strings give independent keys from the same master.
func DeriveKey(masterKey, salt, info []byte, keyLength int) ([]byte, error) {
	switch {
	case len(masterKey) == 0:
		return nil, errors.New("master key cannot be empty")
	case len(salt) == 0:
		return nil, errors.New("salt cannot be empty")
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, info), key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}

// wrappingKeyParams binds a derived wrapping key to one domain.
func wrappingKeyParams(d domain.Domain) (salt, info []byte) {
	return []byte("medvault-salt:" + d.String()), []byte("medvault/key-wrap/" + d.String())
}
