package config

import (
	"strings"
	"time"
)

// ObservabilityConfig groups configuration that controls metrics and
// exhaustion escalation fan-out.
type ObservabilityConfig struct {
	Metrics    ObservabilityMetricsConfig
	Escalation EscalationConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Escalation.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"farmkonnect.scheduler"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// EscalationConfig controls the optional operator escalation of exhausted
// notifications. Disabled by default: exhaustion is silent unless a sink is
// explicitly configured.
type EscalationConfig struct {
	Enabled    bool          `env:"ESCALATION_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"ESCALATION_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"ESCALATION_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackEscalationConfig `envPrefix:"ESCALATION_SLACK_"`
}

// Sanitize normalises escalation configuration values.
func (c *EscalationConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)

	if !c.Enabled {
		c.Slack.Enabled = false
		return
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackEscalationConfig controls Slack webhook fan-out.
type SlackEscalationConfig struct {
	Enabled    bool   `env:"ENABLED" envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"farmkonnect-scheduler"`
}
