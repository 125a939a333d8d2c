package persistence_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory stand-in for the S3 client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	sse     map[string]types.ServerSideEncryption
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, sse: map[string]types.ServerSideEncryption{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.sse[aws.ToString(in.Key)] = in.ServerSideEncryption
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3StorageContract(t *testing.T) {
	testutil.RunBackendContract(t, persistence.NewS3StorageWithClient(newFakeS3(), "bucket", "medvault/", testutil.DiscardLogger()))
}

func TestS3StoragePrefixesAndEncrypts(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := persistence.NewS3StorageWithClient(fake, "bucket", "tenant", testutil.DiscardLogger())

	require.NoError(t, s.Put(ctx, "vault_key_medical", []byte("wrapped")))
	assert.Contains(t, fake.objects, "tenant/vault_key_medical")
	assert.Equal(t, types.ServerSideEncryptionAes256, fake.sse["tenant/vault_key_medical"])

	keys, err := s.List(ctx, "vault_key_")
	require.NoError(t, err)
	assert.Equal(t, []string{"vault_key_medical"}, keys)
	assert.NoError(t, s.HealthCheck(ctx))
}
