package errors

import "errors"

var (
	ErrKeyUnavailable       = errors.New("key unavailable")
	ErrCorruptCiphertext    = errors.New("corrupt ciphertext")
	ErrConsentDenied        = errors.New("consent denied")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrLegacyMigrationParse = errors.New("legacy migration blob is malformed")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrCircuitOpen          = errors.New("circuit breaker is open")
)
