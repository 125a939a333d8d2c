package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  dir: /tmp/medvault\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/medvault", cfg.Storage.Dir)
	assert.Equal(t, config.TierBNone, cfg.Storage.TierB)
	assert.Equal(t, config.WrapperNone, cfg.Vault.Wrapper)
	assert.Equal(t, 30*24*time.Hour, cfg.Vault.CredentialsValidity)
	assert.Zero(t, cfg.Vault.MedicalValidity)
	assert.Equal(t, 1000, cfg.Ledger.Cap)
	assert.Equal(t, 7, cfg.Privacy.MaxRetentionDays)
	assert.True(t, cfg.Privacy.AuditLogging)
	assert.True(t, cfg.Privacy.AccessMonitoring)
	assert.Equal(t, time.Hour, cfg.Monitor.Window)
	assert.Equal(t, 5, cfg.Monitor.FailureThreshold)
	assert.Equal(t, 50, cfg.Monitor.AccessThreshold)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  dir: ./data
  tier_b: postgres
vault:
  credentials_validity: 1h
ledger:
  cap: 10
privacy:
  anonymize_pii: false
logging:
  format: json
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.TierBPostgres, cfg.Storage.TierB)
	assert.Equal(t, time.Hour, cfg.Vault.CredentialsValidity)
	assert.Equal(t, 10, cfg.Ledger.Cap)
	assert.False(t, cfg.Privacy.AnonymizePII)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "ledger:\n  cap: 42\n")
	t.Setenv(config.ConfigPathEnv, path)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Ledger.Cap)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown tier":   "storage:\n  tier_b: floppy\n",
		"bad wrapper":    "vault:\n  wrapper: rot13\n",
		"zero cap":       "ledger:\n  cap: 0\n",
		"bad arn":        "aws:\n  kms_key_arn: not-an-arn\n",
		"bad legacy":     "migration:\n  legacy_name: \"<keys>\"\n",
		"bad log format": "logging:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
