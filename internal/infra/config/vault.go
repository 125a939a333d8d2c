package config

import "time"

const (
	WrapperLocal = "local"
	WrapperAWS   = "aws"
	WrapperNone  = "none"
)

// VaultConfig configures the per-domain key vault. A zero validity means the
// domain key never expires.
type VaultConfig struct {
	Wrapper             string        `mapstructure:"wrapper"              validate:"oneof=local aws none"`
	MasterKey           string        `mapstructure:"master_key"           validate:"omitempty,base64"`
	CredentialsValidity time.Duration `mapstructure:"credentials_validity" validate:"gte=0"`
	MedicalValidity     time.Duration `mapstructure:"medical_validity"     validate:"gte=0"`
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
}

// HashiCorpVaultConfig configures the KV v2 key backend.
type HashiCorpVaultConfig struct {
	Address    string `mapstructure:"address"     validate:"omitempty,url"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	PathPrefix string `mapstructure:"path_prefix"`
}
