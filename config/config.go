// Package config holds process configuration for broker deployments.
// Values come from defaults, an optional YAML file and MEDIABOT_*
// environment variables, in increasing precedence.
package config

import (
	"time"
)

// Config holds all broker process configuration
type Config struct {
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging" validate:"required"`
}

// RedisConfig configures the queue substrate
type RedisConfig struct {
	URI       string `mapstructure:"uri" validate:"required,uri"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// AMQPConfig optionally moves the queues onto RabbitMQ while the cache
// and locks stay on Redis
type AMQPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URI     string `mapstructure:"uri" validate:"required_if=Enabled true,omitempty,uri"`
}

// PostgresConfig configures the durable store; an empty URL selects the
// in-memory store (useful for local runs only)
type PostgresConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,uri"`
}

// EngineConfig configures worker loops and shutdown behavior
type EngineConfig struct {
	Concurrency     int           `mapstructure:"concurrency" validate:"required,gt=0"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout" validate:"required,gt=0"`
	CacheTimeout    time.Duration `mapstructure:"cache_timeout" validate:"required,gt=0"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			URI:       "redis://localhost:6379/",
			Namespace: "mediabot:",
		},
		Engine: EngineConfig{
			Concurrency:     1,
			LockTimeout:     30 * time.Second,
			CacheTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
