package compliance

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/spounge-ai/medvault/internal/domain"
)

const RedactionMarker = "[REDACTED]"

// piiKey matches a key after lowercasing and removing separators.
var piiKey = regexp.MustCompile(`^(` +
	`name|(first|last|middle|full|given|family|patient|doctor|provider|user)name|` +
	`e?mail|emailaddress|` +
	`phone|phonenumber|mobile|telephone|tel|` +
	`address|(street|home|postal|mailing)address|` +
	`ssn|socialsecuritynumber|` +
	`dob|dateofbirth|birthdate|birthday|` +
	`patientid|doctorid|mrn|medicalrecordnumber` +
	`)$`)

var keySeparators = strings.NewReplacer("_", "", "-", "", " ", "", ".", "")

// IsPIIKey reports whether values under key are redacted.
func IsPIIKey(key string) bool {
	return piiKey.MatchString(keySeparators.Replace(strings.ToLower(key)))
}

// Anonymize redacts PII keys at every depth of data. Structs are anonymized
// through their JSON form so json tags decide the key names.
func (l *Ledger) Anonymize(data any) (domain.AnonymizedData, error) {
	generic, err := toGeneric(data)
	if err != nil {
		return domain.AnonymizedData{}, err
	}
	return domain.AnonymizedData{
		OriginalHash:   HashPayload(data),
		AnonymizedData: Redact(generic),
		Timestamp:      l.now().UTC(),
		RetentionDays:  l.Privacy().MaxRetentionDays,
	}, nil
}

// Redact returns a copy of v with every PII key's value replaced by the
// redaction marker. Generic maps and slices are walked recursively. Any other
// composite value (structs, typed maps and slices, pointers) is first
// normalised through JSON so its nested keys are checked too; a value that
// cannot be encoded is redacted whole.
func Redact(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, json.Number:
		return v
	case map[string]any:
		return redactMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Redact(item)
		}
		return out
	}
	if !isComposite(v) {
		return v
	}
	generic, err := toGeneric(v)
	if err != nil {
		return RedactionMarker
	}
	return Redact(generic)
}

func redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsPIIKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = Redact(v)
	}
	return out
}

func isComposite(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

// toGeneric converts v into the plain map[string]any / []any form encoding/json
// decodes into. Only scalars skip the round trip.
func toGeneric(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data for anonymization: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode data for anonymization: %w", err)
	}
	return out, nil
}
