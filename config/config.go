// Package config defines the environment-driven configuration for the
// farmkonnect scheduler service.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// details on available environment variables:
//   - database.go: PostgreSQL and Redis configuration
//   - scheduler.go: scheduler and notification retry configuration
//   - observability.go: metrics and escalation sink configuration
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
type AppConfig struct {
	// IsDev controls development mode behavior (log level, .env loading).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Scheduler configuration
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`

	// Notification retry configuration
	Retry RetryConfig `envPrefix:"RETRY_"`

	// Notification transport configuration
	Transport TransportConfig `envPrefix:"TRANSPORT_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Scheduler.Sanitize()
	c.Retry.Sanitize()
	c.Transport.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode honours APP_ENV as a fallback for the DEV flag.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
