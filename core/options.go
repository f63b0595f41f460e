package core

import (
	"log/slog"
	"time"
)

// EngineConfig holds engine configuration
type EngineConfig struct {
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// EngineOption is a function that modifies engine configuration
type EngineOption func(*EngineConfig)

func defaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		ShutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout
func WithShutdownTimeout(d time.Duration) EngineOption {
	return func(c *EngineConfig) {
		c.ShutdownTimeout = d
	}
}

// WithLogger sets the logger handed to runners and consumers
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *EngineConfig) {
		c.Logger = logger
	}
}
