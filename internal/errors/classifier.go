package errors

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassConsent
	ClassNotFound
	ClassUnavailable
	ClassIntegrity
	ClassUnsupported
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassConsent:
		return "consent"
	case ClassNotFound:
		return "not_found"
	case ClassUnavailable:
		return "unavailable"
	case ClassIntegrity:
		return "integrity"
	case ClassUnsupported:
		return "unsupported"
	default:
		return "internal"
	}
}

type ClassifiedError struct {
	Class         ErrorClass
	InternalError error
	ClientMessage string
	OperationName string
	Retryable     bool
	RecordName    string // logged, never returned
	Metadata      map[string]interface{}
}

// SanitizedError is what leaves the trust boundary: a class and a message that
// never carries record contents or key material.
type SanitizedError struct {
	Class     ErrorClass
	Message   string
	Retryable bool
	cause     error
}

func (e *SanitizedError) Error() string { return e.Message }

// Unwrap keeps errors.Is working against the sentinels for in-process callers.
func (e *SanitizedError) Unwrap() error { return e.cause }

type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	return &ErrorClassifier{logger: logger}
}

var errorPool = sync.Pool{
	New: func() interface{} {
		return &ClassifiedError{
			Metadata: make(map[string]interface{}, 4),
		}
	},
}

func (ec *ErrorClassifier) Classify(err error, operation string) *ClassifiedError {
	classified := errorPool.Get().(*ClassifiedError)
	classified.InternalError = err
	classified.OperationName = operation
	classified.Class, classified.ClientMessage, classified.Retryable = classify(err)
	return classified
}

// PublicMessage is the client-safe text for err, suitable for audit entries.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	_, msg, _ := classify(err)
	return msg
}

func classify(err error) (class ErrorClass, message string, retryable bool) {
	switch {
	case errors.Is(err, ErrNotFound):
		class = ClassNotFound
		message = "The requested record was not found"
	case errors.Is(err, ErrInvalidInput):
		class = ClassValidation
		message = "The request contains invalid parameters"
	case errors.Is(err, ErrConsentDenied):
		class = ClassConsent
		message = "This operation requires consent that has not been granted"
	case errors.Is(err, ErrKeyUnavailable):
		class = ClassUnavailable
		message = "Secure storage is temporarily unavailable"
		retryable = true
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrCircuitOpen):
		class = ClassUnavailable
		message = "Storage is temporarily unavailable"
		retryable = true
	case errors.Is(err, ErrCorruptCiphertext), errors.Is(err, ErrLegacyMigrationParse):
		class = ClassIntegrity
		message = "Stored data could not be read and was discarded"
	case errors.Is(err, ErrUnsupportedFormat):
		class = ClassUnsupported
		message = "The requested format is not supported"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		class = ClassUnavailable
		message = "The operation timed out"
		retryable = true
	default:
		class = ClassInternal
		message = "An unexpected internal error occurred"
	}

	return class, message, retryable
}

func (ec *ErrorClassifier) LogAndSanitize(ctx context.Context, classified *ClassifiedError) error {
	defer ec.putError(classified)

	ec.logger.ErrorContext(ctx, "operation failed",
		"operation", classified.OperationName,
		"error_class", classified.Class.String(),
		"internal_error", classified.InternalError.Error(),
		"record_name", classified.RecordName,
		"retryable", classified.Retryable,
		"metadata", classified.Metadata,
	)

	return &SanitizedError{
		Class:     classified.Class,
		Message:   classified.ClientMessage,
		Retryable: classified.Retryable,
		cause:     classified.InternalError,
	}
}

// Sanitize classifies, logs and converts err in one step. A nil err stays nil.
func (ec *ErrorClassifier) Sanitize(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	return ec.LogAndSanitize(ctx, ec.Classify(err, operation))
}

func (ec *ErrorClassifier) putError(err *ClassifiedError) {
	err.RecordName = ""
	err.InternalError = nil
	for k := range err.Metadata {
		delete(err.Metadata, k)
	}
	err.OperationName = ""
	errorPool.Put(err)
}
