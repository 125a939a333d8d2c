package domain

import (
	"fmt"
	"time"
)

type ConsentFlag string

const (
	ConsentDataCollection ConsentFlag = "dataCollection"
	ConsentDataStorage    ConsentFlag = "dataStorage"
	ConsentDataSharing    ConsentFlag = "dataSharing"
	ConsentAnalytics      ConsentFlag = "analytics"
)

func ParseConsentFlag(s string) (ConsentFlag, error) {
	switch ConsentFlag(s) {
	case ConsentDataCollection, ConsentDataStorage, ConsentDataSharing, ConsentAnalytics:
		return ConsentFlag(s), nil
	default:
		return "", fmt.Errorf("unknown consent flag %q", s)
	}
}

// ConsentSettings is the process-wide consent state. The zero value has every
// flag off.
type ConsentSettings struct {
	DataCollection bool      `json:"dataCollection"`
	DataStorage    bool      `json:"dataStorage"`
	DataSharing    bool      `json:"dataSharing"`
	Analytics      bool      `json:"analytics"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

func (c ConsentSettings) Has(flag ConsentFlag) bool {
	switch flag {
	case ConsentDataCollection:
		return c.DataCollection
	case ConsentDataStorage:
		return c.DataStorage
	case ConsentDataSharing:
		return c.DataSharing
	case ConsentAnalytics:
		return c.Analytics
	default:
		return false
	}
}

func (c *ConsentSettings) Set(flag ConsentFlag, granted bool) {
	switch flag {
	case ConsentDataCollection:
		c.DataCollection = granted
	case ConsentDataStorage:
		c.DataStorage = granted
	case ConsentDataSharing:
		c.DataSharing = granted
	case ConsentAnalytics:
		c.Analytics = granted
	}
}

// PrivacySettings is the process-wide privacy configuration.
type PrivacySettings struct {
	MaxRetentionDays  int  `json:"maxRetentionDays" mapstructure:"max_retention_days" validate:"gte=1,lte=3650"`
	AutoDelete        bool `json:"autoDelete"        mapstructure:"auto_delete"`
	AnonymizePII      bool `json:"anonymizePII"      mapstructure:"anonymize_pii"`
	AuditLogging      bool `json:"auditLogging"      mapstructure:"audit_logging"`
	BreachDetection   bool `json:"breachDetection"   mapstructure:"breach_detection"`
	EncryptionEnabled bool `json:"encryptionEnabled" mapstructure:"encryption_enabled"`
	AccessMonitoring  bool `json:"accessMonitoring"  mapstructure:"access_monitoring"`
}

func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{
		MaxRetentionDays:  7,
		AutoDelete:        true,
		AnonymizePII:      true,
		AuditLogging:      true,
		BreachDetection:   true,
		EncryptionEnabled: true,
		AccessMonitoring:  true,
	}
}

type BreachType string

const (
	BreachMultipleFailedAttempts BreachType = "multiple_failed_attempts"
	BreachUnusualAccessPattern   BreachType = "unusual_access_pattern"
	BreachCriticalAction         BreachType = "critical_action_detected"
)

// BreachRecord is a detected anomalous-usage event. Only Resolved ever changes.
type BreachRecord struct {
	ID        string         `json:"id"`
	Type      BreachType     `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Resolved  bool           `json:"resolved"`
}

// BreachEvent is delivered to the host UI when a breach is recorded.
type BreachEvent struct {
	Breach  BreachRecord
	Message string
}

// AnonymizedData is the result of redacting PII from an arbitrary document.
type AnonymizedData struct {
	OriginalHash   string    `json:"originalHash"`
	AnonymizedData any       `json:"anonymizedData"`
	Timestamp      time.Time `json:"timestamp"`
	RetentionDays  int       `json:"retentionDays"`
}

// Snapshot is an anonymized conversation kept for data collection.
type Snapshot struct {
	ID   string         `json:"id"`
	Data AnonymizedData `json:"data"`
}
