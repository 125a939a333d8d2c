package config

const (
	TierBNone     = "none"
	TierBPostgres = "postgres"
	TierBS3       = "s3"
	TierBVault    = "vault"
)

// StorageConfig selects the record store directory (Tier A) and the optional
// secure key tier (Tier B).
type StorageConfig struct {
	Dir   string `mapstructure:"dir"    validate:"required"`
	TierB string `mapstructure:"tier_b" validate:"oneof=none postgres s3 vault"`
}

type ExportConfig struct {
	Sink   string `mapstructure:"sink"   validate:"oneof=none s3"`
	Prefix string `mapstructure:"prefix"`
}

const (
	ExportSinkNone = "none"
	ExportSinkS3   = "s3"
)

type MigrationConfig struct {
	Concurrency int    `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	LegacyName  string `mapstructure:"legacy_name" validate:"required,nohtml,nocontrol"`
}
