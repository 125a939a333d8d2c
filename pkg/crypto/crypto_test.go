package crypto_test

import (
	"testing"

	"github.com/spounge-ai/medvault/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenPrefixed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	aead, err := crypto.NewAEAD(key)
	require.NoError(t, err)

	sealed, err := crypto.SealPrefixed(aead, []byte("hello"), []byte("aad"))
	require.NoError(t, err)

	plain, err := crypto.OpenPrefixed(aead, sealed, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plain)

	_, err = crypto.OpenPrefixed(aead, sealed, []byte("other"))
	assert.Error(t, err)

	_, err = crypto.OpenPrefixed(aead, sealed[:4], nil)
	assert.ErrorIs(t, err, crypto.ErrCiphertextTooShort)
}

func TestNewAEADRejectsShortKey(t *testing.T) {
	_, err := crypto.NewAEAD(make([]byte, 16))
	assert.ErrorIs(t, err, crypto.ErrInvalidKeySize)
}

func TestFingerprintIsStable(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	assert.Equal(t, crypto.Fingerprint(key), crypto.Fingerprint(key))
	assert.Len(t, crypto.Fingerprint(key), 16)

	other := make([]byte, crypto.KeySize)
	other[0] = 1
	assert.NotEqual(t, crypto.Fingerprint(key), crypto.Fingerprint(other))
}
