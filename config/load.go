package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from the optional file at path (empty skips
// the file), layers MEDIABOT_* environment variables on top of defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("redis.uri", defaults.Redis.URI)
	v.SetDefault("redis.namespace", defaults.Redis.Namespace)
	v.SetDefault("amqp.enabled", false)
	v.SetDefault("amqp.uri", "")
	v.SetDefault("postgres.url", "")
	v.SetDefault("engine.concurrency", defaults.Engine.Concurrency)
	v.SetDefault("engine.lock_timeout", defaults.Engine.LockTimeout)
	v.SetDefault("engine.cache_timeout", defaults.Engine.CacheTimeout)
	v.SetDefault("engine.retry_backoff", defaults.Engine.RetryBackoff)
	v.SetDefault("engine.max_attempts", defaults.Engine.MaxAttempts)
	v.SetDefault("engine.shutdown_timeout", defaults.Engine.ShutdownTimeout)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetEnvPrefix("MEDIABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}
