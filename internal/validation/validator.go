package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spounge-ai/medvault/internal/domain"
	pkgvalidator "github.com/spounge-ai/medvault/pkg/validator"
)

const (
	MaxRecordNameLen = 200
	MaxPayloadSize   = 4 * 1024 * 1024 // 4MB
)

// RecordValidator checks record names and payloads before they reach the vault.
// Invalid input is rejected, never escaped.
type RecordValidator struct {
	validator *validator.Validate
}

func NewRecordValidator() (*RecordValidator, error) {
	v := validator.New()

	if err := pkgvalidator.RegisterCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}

	return &RecordValidator{validator: v}, nil
}

func (rv *RecordValidator) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("record name is required")
	}
	if err := rv.validator.Var(name, fmt.Sprintf("max=%d", MaxRecordNameLen)); err != nil {
		return fmt.Errorf("record name exceeds maximum length of %d characters", MaxRecordNameLen)
	}
	if err := rv.validator.Var(name, "nohtml"); err != nil {
		return fmt.Errorf("record name contains markup characters")
	}
	if err := rv.validator.Var(name, "nocontrol"); err != nil {
		return fmt.Errorf("record name contains control characters")
	}
	return nil
}

func (rv *RecordValidator) ValidatePayload(p domain.Payload) error {
	if p == nil {
		return fmt.Errorf("payload is required")
	}

	if err := rv.validator.Struct(p); err != nil {
		return fmt.Errorf("payload validation failed: %w", summarize(err))
	}

	if err := rv.validatePayloadSize(p); err != nil {
		return fmt.Errorf("payload size validation failed: %w", err)
	}

	return nil
}

func (rv *RecordValidator) validatePayloadSize(p domain.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("payload size %d exceeds maximum of %d bytes", len(data), MaxPayloadSize)
	}
	return nil
}

// summarize reports field names and failed tags without echoing field values.
func summarize(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
}
