package kms_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func masterKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
}

func TestLocalWrapperRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, err := kms.NewLocalWrapper(masterKey())
	require.NoError(t, err)
	defer w.Close()

	key := bytes.Repeat([]byte{1}, 32)
	wrapped, err := w.Wrap(ctx, key, domain.DomainMedical)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), string(key))

	got, err := w.Unwrap(ctx, wrapped, domain.DomainMedical)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestLocalWrapperBindsDomain(t *testing.T) {
	ctx := context.Background()
	w, err := kms.NewLocalWrapper(masterKey())
	require.NoError(t, err)
	defer w.Close()

	wrapped, err := w.Wrap(ctx, bytes.Repeat([]byte{1}, 32), domain.DomainMedical)
	require.NoError(t, err)

	_, err = w.Unwrap(ctx, wrapped, domain.DomainCredentials)
	assert.Error(t, err)
}

func TestLocalWrapperRejectsBadMasterKey(t *testing.T) {
	_, err := kms.NewLocalWrapper("not base64!")
	assert.Error(t, err)

	_, err = kms.NewLocalWrapper(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestDeriveKeyValidates(t *testing.T) {
	_, err := kms.DeriveKey(nil, []byte("s"), nil, 32)
	assert.Error(t, err)
	_, err = kms.DeriveKey([]byte("m"), nil, nil, 32)
	assert.Error(t, err)

	a, err := kms.DeriveKey([]byte("m"), []byte("s"), []byte("a"), 32)
	require.NoError(t, err)
	b, err := kms.DeriveKey([]byte("m"), []byte("s"), []byte("b"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

type fakeKMS struct {
	lastContext map[string]string
	fail        bool
}

func (f *fakeKMS) Encrypt(_ context.Context, in *awskms.EncryptInput, _ ...func(*awskms.Options)) (*awskms.EncryptOutput, error) {
	if f.fail {
		return nil, errors.New("throttled")
	}
	f.lastContext = in.EncryptionContext
	return &awskms.EncryptOutput{CiphertextBlob: append([]byte("kms:"), in.Plaintext...)}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *awskms.DecryptInput, _ ...func(*awskms.Options)) (*awskms.DecryptOutput, error) {
	if f.fail {
		return nil, errors.New("throttled")
	}
	f.lastContext = in.EncryptionContext
	return &awskms.DecryptOutput{Plaintext: bytes.TrimPrefix(in.CiphertextBlob, []byte("kms:"))}, nil
}

func TestAWSWrapperPassesDomainContext(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{}
	w := kms.NewAWSWrapperWithClient(fake, "arn:aws:kms:us-east-1:123456789012:key/abc")

	wrapped, err := w.Wrap(ctx, []byte("k"), domain.DomainCredentials)
	require.NoError(t, err)
	assert.Equal(t, "credentials", fake.lastContext["medvault:domain"])

	got, err := w.Unwrap(ctx, wrapped, domain.DomainCredentials)
	require.NoError(t, err)
	assert.Equal(t, []byte("k"), got)

	fake.fail = true
	_, err = w.Wrap(ctx, []byte("k"), domain.DomainCredentials)
	assert.Error(t, err)
}

func TestNoopWrapperCopies(t *testing.T) {
	in := []byte("key")
	out, err := kms.NoopWrapper{}.Wrap(context.Background(), in, domain.DomainMedical)
	require.NoError(t, err)
	in[0] = 'x'
	assert.Equal(t, []byte("key"), out)
}
