package errors_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	ec := apperrors.NewErrorClassifier(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	cases := []struct {
		err       error
		class     apperrors.ErrorClass
		retryable bool
	}{
		{apperrors.ErrNotFound, apperrors.ClassNotFound, false},
		{fmt.Errorf("put: %w", apperrors.ErrInvalidInput), apperrors.ClassValidation, false},
		{apperrors.ErrConsentDenied, apperrors.ClassConsent, false},
		{apperrors.ErrKeyUnavailable, apperrors.ClassUnavailable, true},
		{apperrors.ErrStorageUnavailable, apperrors.ClassUnavailable, true},
		{apperrors.ErrCorruptCiphertext, apperrors.ClassIntegrity, false},
		{apperrors.ErrUnsupportedFormat, apperrors.ClassUnsupported, false},
		{errors.New("boom"), apperrors.ClassInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			c := ec.Classify(tc.err, "op")
			assert.Equal(t, tc.class, c.Class)
			assert.Equal(t, tc.retryable, c.Retryable)
		})
	}
}

func TestSanitizeHidesInternalMessage(t *testing.T) {
	var buf bytes.Buffer
	ec := apperrors.NewErrorClassifier(slog.New(slog.NewTextHandler(&buf, nil)))

	err := ec.Sanitize(context.Background(), fmt.Errorf("secret-value leaked: %w", apperrors.ErrConsentDenied), "records.put")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-value")
	assert.ErrorIs(t, err, apperrors.ErrConsentDenied)
	assert.Contains(t, buf.String(), "records.put")

	assert.NoError(t, ec.Sanitize(context.Background(), nil, "noop"))
}
