package config

import "time"

// CircuitBreakerConfig holds settings for the Tier B circuit breaker.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// PersistenceConfig represents the Postgres configuration used by the Tier B
// backend and the audit archive.
type PersistenceConfig struct {
	AutoMigrate    bool                 `mapstructure:"auto_migrate"`
	Database       DatabaseConfig       `mapstructure:"database"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DatabaseConfig represents the database configuration.
type DatabaseConfig struct {
	URL        string             `mapstructure:"url" validate:"omitempty,url"`
	Connection DBConnectionConfig `mapstructure:"connection"`
}

// DBConnectionConfig represents the database connection pool configuration.
type DBConnectionConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}
