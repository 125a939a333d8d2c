package config

import "time"

// ArchiveConfig holds the configuration for the asynchronous audit archive.
type ArchiveConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ChannelBufferSize int           `mapstructure:"channel_buffer_size"`
	WorkerCount       int           `mapstructure:"worker_count"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
}
