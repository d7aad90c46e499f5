package config

import "time"

// SchedulerConfig controls the job scheduler runtime.
type SchedulerConfig struct {
	// RetrySweepSchedule is the cron expression under which the notification
	// retry coordinator runs (default: every 5 minutes).
	RetrySweepSchedule string `env:"RETRY_SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`

	// StatusPublishInterval is how often job status snapshots are mirrored
	// to Redis for the web tier.
	StatusPublishInterval time.Duration `env:"STATUS_PUBLISH_INTERVAL" envDefault:"15s"`
}

// Sanitize applies guardrails to scheduler configuration.
func (c *SchedulerConfig) Sanitize() {
	if c.RetrySweepSchedule == "" {
		c.RetrySweepSchedule = "*/5 * * * *"
	}
	if c.StatusPublishInterval <= 0 {
		c.StatusPublishInterval = 15 * time.Second
	}
}

// RetryConfig controls the notification retry coordinator's backoff behaviour.
// The exponential delay after the n-th failed attempt is
// min(MaxDelay, InitialDelay × BackoffMultiplier^(n-1)).
type RetryConfig struct {
	// MaxRetries is the attempt count at which a notification is exhausted.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration `env:"INITIAL_DELAY" envDefault:"5m"`
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `env:"MAX_DELAY" envDefault:"24h"`
	// BackoffMultiplier is the exponential growth factor. Must be > 1.
	BackoffMultiplier float64 `env:"BACKOFF_MULTIPLIER" envDefault:"2"`
	// BatchSize bounds how many due notifications one sweep picks up.
	BatchSize int `env:"BATCH_SIZE" envDefault:"100"`
}

// Sanitize enforces the documented constraints on retry configuration:
// MaxRetries > 0, InitialDelay > 0, MaxDelay >= InitialDelay, multiplier > 1.
func (c *RetryConfig) Sanitize() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Minute
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = 24 * time.Hour
		if c.MaxDelay < c.InitialDelay {
			c.MaxDelay = c.InitialDelay
		}
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// TransportConfig configures the webhook notification transport.
type TransportConfig struct {
	// GatewayURL is the notification gateway endpoint deliveries are posted to.
	GatewayURL string `env:"GATEWAY_URL"`
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string `env:"AUTH_TOKEN"`
}

// Sanitize applies guardrails to transport configuration.
func (c *TransportConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
