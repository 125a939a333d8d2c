package kms

import (
	"context"

	"github.com/spounge-ai/medvault/internal/domain"
)

const NameNone = "none"

// NoopWrapper stores key bytes as-is and relies on the backend for protection.
type NoopWrapper struct{}

func (NoopWrapper) Name() string { return NameNone }

func (NoopWrapper) Wrap(_ context.Context, plaintextKey []byte, _ domain.Domain) ([]byte, error) {
	return append([]byte(nil), plaintextKey...), nil
}

func (NoopWrapper) Unwrap(_ context.Context, wrappedKey []byte, _ domain.Domain) ([]byte, error) {
	return append([]byte(nil), wrappedKey...), nil
}

var (
	_ domain.KeyWrapper = NoopWrapper{}
	_ domain.KeyWrapper = (*LocalWrapper)(nil)
	_ domain.KeyWrapper = (*AWSWrapper)(nil)
)
