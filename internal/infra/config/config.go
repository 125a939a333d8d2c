package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/spounge-ai/medvault/internal/domain"
	customvalidator "github.com/spounge-ai/medvault/pkg/validator"
)

// ConfigPathEnv names the environment variable that points at the YAML config file.
const ConfigPathEnv = "MEDVAULT_CONFIG_PATH"

type Config struct {
	Storage        StorageConfig          `mapstructure:"storage"         validate:"required"`
	Vault          VaultConfig            `mapstructure:"vault"           validate:"required"`
	Ledger         LedgerConfig           `mapstructure:"ledger"          validate:"required"`
	Privacy        domain.PrivacySettings `mapstructure:"privacy"`
	Monitor        MonitorConfig          `mapstructure:"monitor"`
	Persistence    PersistenceConfig      `mapstructure:"persistence"`
	AWS            AWSConfig              `mapstructure:"aws"`
	HashiCorpVault HashiCorpVaultConfig   `mapstructure:"hashicorp_vault"`
	Archive        ArchiveConfig          `mapstructure:"archive"`
	Notify         NotifyConfig           `mapstructure:"notify"`
	Export         ExportConfig           `mapstructure:"export"`
	Migration      MigrationConfig        `mapstructure:"migration"`
	Logging        LoggingConfig          `mapstructure:"logging"`
	ServiceVersion string
	BuildCommit    string
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func setDefaults(vip *viper.Viper) {
	privacy := domain.DefaultPrivacySettings()

	vip.SetDefault("storage.dir", "./data")
	vip.SetDefault("storage.tier_b", TierBNone)
	vip.SetDefault("vault.wrapper", WrapperNone)
	vip.SetDefault("vault.credentials_validity", "720h")
	vip.SetDefault("vault.medical_validity", "0s")
	vip.SetDefault("vault.operation_timeout", "5s")
	vip.SetDefault("ledger.cap", 1000)
	vip.SetDefault("ledger.actor_id", "local-user")
	vip.SetDefault("privacy.max_retention_days", privacy.MaxRetentionDays)
	vip.SetDefault("privacy.auto_delete", privacy.AutoDelete)
	vip.SetDefault("privacy.anonymize_pii", privacy.AnonymizePII)
	vip.SetDefault("privacy.audit_logging", privacy.AuditLogging)
	vip.SetDefault("privacy.breach_detection", privacy.BreachDetection)
	vip.SetDefault("privacy.encryption_enabled", privacy.EncryptionEnabled)
	vip.SetDefault("privacy.access_monitoring", privacy.AccessMonitoring)
	vip.SetDefault("monitor.window", "1h")
	vip.SetDefault("monitor.failure_threshold", 5)
	vip.SetDefault("monitor.access_threshold", 50)
	vip.SetDefault("persistence.auto_migrate", true)
	vip.SetDefault("persistence.circuit_breaker.enabled", true)
	vip.SetDefault("persistence.circuit_breaker.max_failures", 5)
	vip.SetDefault("persistence.circuit_breaker.reset_timeout", "30s")
	vip.SetDefault("persistence.database.connection.max_conns", 4)
	vip.SetDefault("persistence.database.connection.min_conns", 0)
	vip.SetDefault("hashicorp_vault.mount_path", "secret")
	vip.SetDefault("hashicorp_vault.path_prefix", "medvault")
	vip.SetDefault("archive.enabled", false)
	vip.SetDefault("archive.channel_buffer_size", 1024)
	vip.SetDefault("archive.worker_count", 2)
	vip.SetDefault("archive.batch_size", 50)
	vip.SetDefault("archive.batch_timeout", "2s")
	vip.SetDefault("notify.buffer_size", 64)
	vip.SetDefault("notify.interval", "1m")
	vip.SetDefault("notify.burst", 3)
	vip.SetDefault("export.sink", ExportSinkNone)
	vip.SetDefault("export.prefix", "exports")
	vip.SetDefault("migration.concurrency", 4)
	vip.SetDefault("migration.legacy_name", "api_keys")
	vip.SetDefault("logging.level", "info")
	vip.SetDefault("logging.format", "text")
}

// Load reads the YAML config at path, or the file named by MEDVAULT_CONFIG_PATH,
// or config.yaml under ./configs and the working directory. A missing file is
// not an error; defaults and MEDVAULT_* environment variables still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}

	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("MEDVAULT")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.ServiceVersion = getenv("MEDVAULT_SERVICE_VERSION", "unknown")
	cfg.BuildCommit = getenv("MEDVAULT_BUILD_COMMIT", "unknown")

	return &cfg, nil
}

func Validate(cfg *Config) error {
	validate := validator.New()
	if err := customvalidator.RegisterCustomValidators(validate); err != nil {
		return fmt.Errorf("failed to register custom validators: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// getenv returns an environment variable or a default value.
func getenv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
