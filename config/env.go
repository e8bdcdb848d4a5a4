// Package config loads engine tuning parameters from the environment so
// deployments can adjust polling and retry behavior without code changes.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Env captures the tunable engine settings, all prefixed AGENTRUN_.
type Env struct {
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	AwaitTimeout    time.Duration `envconfig:"AWAIT_TIMEOUT" default:"5m"`
	RetryAttempts   int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"250ms"`
	MaxToolParallel int           `envconfig:"MAX_TOOL_PARALLEL" default:"8"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

const namespace = "AGENTRUN"

// LoadEnv reads the environment into an Env.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// SlogLevel maps the configured level string onto slog.Level, defaulting to
// info on unparseable input.
func (e *Env) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
