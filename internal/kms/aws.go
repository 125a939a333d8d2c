package kms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/spounge-ai/medvault/internal/domain"
)

const (
	NameAWS = "aws"

	encryptionContextDomain = "medvault:domain"
)

// KMSAPI is the subset of the AWS KMS client the wrapper needs.
type KMSAPI interface {
	Encrypt(ctx context.Context, in *awskms.EncryptInput, optFns ...func(*awskms.Options)) (*awskms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *awskms.DecryptInput, optFns ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// AWSWrapper wraps domain keys with an AWS KMS customer master key. The domain
// is bound through the encryption context.
type AWSWrapper struct {
	client    KMSAPI
	kmsKeyARN string
}

func NewAWSWrapper(cfg aws.Config, kmsKeyARN string) *AWSWrapper {
	return NewAWSWrapperWithClient(awskms.NewFromConfig(cfg), kmsKeyARN)
}

func NewAWSWrapperWithClient(client KMSAPI, kmsKeyARN string) *AWSWrapper {
	return &AWSWrapper{client: client, kmsKeyARN: kmsKeyARN}
}

func (w *AWSWrapper) Name() string { return NameAWS }

func (w *AWSWrapper) Wrap(ctx context.Context, plaintextKey []byte, d domain.Domain) ([]byte, error) {
	result, err := w.client.Encrypt(ctx, &awskms.EncryptInput{
		KeyId:             aws.String(w.kmsKeyARN),
		Plaintext:         plaintextKey,
		EncryptionContext: map[string]string{encryptionContextDomain: d.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms encrypt failed: %w", err)
	}
	return result.CiphertextBlob, nil
}

func (w *AWSWrapper) Unwrap(ctx context.Context, wrappedKey []byte, d domain.Domain) ([]byte, error) {
	result, err := w.client.Decrypt(ctx, &awskms.DecryptInput{
		CiphertextBlob:    wrappedKey,
		KeyId:             aws.String(w.kmsKeyARN),
		EncryptionContext: map[string]string{encryptionContextDomain: d.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms decrypt failed: %w", err)
	}
	return result.Plaintext, nil
}
