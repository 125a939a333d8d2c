package config

import "time"

type LedgerConfig struct {
	Cap     int    `mapstructure:"cap"      validate:"gte=1"`
	ActorID string `mapstructure:"actor_id" validate:"required"`
}

type MonitorConfig struct {
	Window           time.Duration `mapstructure:"window"            validate:"gte=0"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=0"`
	AccessThreshold  int           `mapstructure:"access_threshold"  validate:"gte=0"`
}

// NotifyConfig throttles breach notifications per breach type.
type NotifyConfig struct {
	BufferSize int           `mapstructure:"buffer_size" validate:"gte=1"`
	Interval   time.Duration `mapstructure:"interval"`
	Burst      int           `mapstructure:"burst"       validate:"gte=1"`
}
