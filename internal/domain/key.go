package domain

import (
	"fmt"
	"time"
)

// Domain is a named partition of keys and records with its own symmetric key.
type Domain string

const (
	DomainCredentials Domain = "credentials"
	DomainMedical     Domain = "medical"
)

// Domains lists every known domain in initialization order.
var Domains = []Domain{DomainCredentials, DomainMedical}

func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainCredentials, DomainMedical:
		return Domain(s), nil
	default:
		return "", fmt.Errorf("unknown domain %q", s)
	}
}

func (d Domain) String() string {
	return string(d)
}

// KeyHandle describes the active key of a domain without carrying key material.
type KeyHandle struct {
	Domain      Domain
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Source      string
	Fingerprint string
}

// Expired reports whether the handle is past its validity window at now.
func (h KeyHandle) Expired(now time.Time) bool {
	return h.ExpiresAt != nil && !now.Before(*h.ExpiresAt)
}

// StoredKey is the persisted form of a domain key.
type StoredKey struct {
	Domain        Domain    `json:"domain"`
	WrappedKey    []byte    `json:"wrappedKey"`
	Wrapper       string    `json:"wrapper"`
	CreatedAt     time.Time `json:"createdAt"`
	FormatVersion int       `json:"formatVersion"`
}

const StoredKeyFormatVersion = 1
