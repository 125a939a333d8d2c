package domain

import (
	"fmt"
	"time"
)

// EnvelopeFormatVersion is the only envelope layout this build can open.
const EnvelopeFormatVersion = 1

// RecordKind tags the payload carried by an envelope.
type RecordKind string

const (
	KindCredential   RecordKind = "credential"
	KindConversation RecordKind = "conversation"
	KindSummary      RecordKind = "summary"
	KindExtraction   RecordKind = "extraction"
)

func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case KindCredential, KindConversation, KindSummary, KindExtraction:
		return RecordKind(s), nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// Domain returns the key domain that protects records of this kind.
func (k RecordKind) Domain() Domain {
	if k == KindCredential {
		return DomainCredentials
	}
	return DomainMedical
}

// Envelope is the versioned container around a ciphertext. It is never mutated;
// an update writes a new envelope with a fresh nonce.
type Envelope struct {
	Ciphertext    []byte     `json:"ciphertext"`
	Nonce         []byte     `json:"nonce"`
	CreatedAt     time.Time  `json:"createdAt"`
	FormatVersion int        `json:"formatVersion"`
	RecordKind    RecordKind `json:"recordKind"`
}

// AAD binds the envelope header and the record name into the authentication tag.
func (e *Envelope) AAD(name string) []byte {
	return []byte(fmt.Sprintf("medvault/v%d/%s/%s", e.FormatVersion, e.RecordKind, name))
}
