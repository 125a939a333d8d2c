package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed set of record schemas the store can encrypt.
type Payload interface {
	Kind() RecordKind
	isPayload()
}

// Credential is an ephemeral translation-provider secret.
type Credential struct {
	Provider string `json:"provider,omitempty" validate:"omitempty,max=64,nohtml,nocontrol"`
	Value    string `json:"value"              validate:"required,max=8192"`
}

// Message is a single utterance in a saved conversation.
type Message struct {
	Speaker    string    `json:"speaker"              validate:"required,max=64,nocontrol"`
	Original   string    `json:"original"             validate:"max=20000"`
	Translated string    `json:"translated,omitempty" validate:"max=20000"`
	Language   string    `json:"language,omitempty"   validate:"omitempty,max=16,nocontrol"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conversation is a saved case including its nested extraction and summary.
type Conversation struct {
	CaseID           string            `json:"caseId"                     validate:"required,max=200,nohtml,nocontrol"`
	Title            string            `json:"title,omitempty"            validate:"max=200,nocontrol"`
	PatientName      string            `json:"patientName,omitempty"      validate:"max=200,nocontrol"`
	PatientLanguage  string            `json:"patientLanguage,omitempty"  validate:"omitempty,max=16,nocontrol"`
	ProviderLanguage string            `json:"providerLanguage,omitempty" validate:"omitempty,max=16,nocontrol"`
	Messages         []Message         `json:"messages"                   validate:"max=10000,dive"`
	Extraction       *Extraction       `json:"extraction,omitempty"`
	Summary          *Summary          `json:"summary,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"             validate:"max=50,dive,keys,max=128,nohtml,nocontrol,endkeys,max=256,nohtml"`
	SavedAt          time.Time         `json:"savedAt"`
}

// Summary is a generated case summary.
type Summary struct {
	CaseID      string    `json:"caseId"              validate:"required,max=200,nohtml,nocontrol"`
	Text        string    `json:"text"                validate:"max=100000"`
	KeyPoints   []string  `json:"keyPoints,omitempty" validate:"max=100"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Extraction holds medical facts pulled out of a conversation.
type Extraction struct {
	CaseID      string            `json:"caseId"                validate:"required,max=200,nohtml,nocontrol"`
	Symptoms    []string          `json:"symptoms,omitempty"`
	Medications []string          `json:"medications,omitempty"`
	Allergies   []string          `json:"allergies,omitempty"`
	Conditions  []string          `json:"conditions,omitempty"`
	Vitals      map[string]string `json:"vitals,omitempty"`
}

func (Credential) Kind() RecordKind   { return KindCredential }
func (Conversation) Kind() RecordKind { return KindConversation }
func (Summary) Kind() RecordKind      { return KindSummary }
func (Extraction) Kind() RecordKind   { return KindExtraction }

func (Credential) isPayload()   {}
func (Conversation) isPayload() {}
func (Summary) isPayload()      {}
func (Extraction) isPayload()   {}

// DecodePayload decodes plaintext into the fixed schema of kind.
// Unknown fields are rejected so a layout drift surfaces as a decode failure.
func DecodePayload(kind RecordKind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindCredential:
		var v Credential
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindConversation:
		var v Conversation
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindSummary:
		var v Summary
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindExtraction:
		var v Extraction
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	return p, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// Record is a decrypted record returned to collaborators.
type Record struct {
	Name      string
	Kind      RecordKind
	CreatedAt time.Time
	Payload   Payload
}
