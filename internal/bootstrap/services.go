package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/farmkonnect/scheduler/config"
	schedadapter "github.com/farmkonnect/scheduler/internal/adapters/scheduler"
	"github.com/farmkonnect/scheduler/internal/adapters/transport"
	"github.com/farmkonnect/scheduler/internal/core"
	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/observability/notify/slack"
	"github.com/farmkonnect/scheduler/internal/observability/statsd"
	"github.com/farmkonnect/scheduler/internal/service"
	"github.com/farmkonnect/scheduler/internal/service/escalation"
)

// ServiceDeps carries the shared infrastructure the runner is built from.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // nil when the status publisher is disabled
	Logger      *slog.Logger
	Jobs        []schedadapter.JobRegistration
}

// NewRunner wires the scheduler, retry coordinator, transports and
// observability sinks into a ready-to-run process runner.
func NewRunner(deps *ServiceDeps) (*schedadapter.Runner, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics client: %w", err)
	}

	gateway, err := transport.NewWebhookTransport(transport.Config{
		GatewayURL: cfg.Transport.GatewayURL,
		AuthToken:  cfg.Transport.AuthToken,
		Timeout:    cfg.Transport.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init notification gateway transport: %w", err)
	}

	escalationSvc, err := buildEscalation(cfg.Observability.Escalation, logger)
	if err != nil {
		return nil, err
	}

	retrySvc, err := service.NewRetryService(service.RetryServiceOptions{
		Store:      data.NewNotificationRepo(deps.DB),
		Transport:  gateway,
		Config:     cfg.Retry,
		Logger:     logger,
		Metrics:    metrics,
		Escalation: escalationSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("init retry service: %w", err)
	}

	var publisher core.StatusPublisher
	if deps.RedisClient != nil {
		publisher = data.NewRedisStatusRepo(deps.RedisClient)
	}

	return schedadapter.NewRunner(schedadapter.RunnerOptions{
		Scheduler: service.NewScheduler(service.SchedulerOptions{
			Logger:  logger,
			Metrics: metrics,
		}),
		Retry:     retrySvc,
		Config:    cfg.Scheduler,
		Publisher: publisher,
		Logger:    logger,
		Jobs:      deps.Jobs,
	})
}

// buildEscalation assembles the exhaustion escalation fan-out from config.
// Returns nil when escalation is disabled or no sink is configured.
func buildEscalation(cfg config.EscalationConfig, logger *slog.Logger) (*escalation.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var sinks []escalation.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("init slack escalation sink: %w", err)
		}
		sinks = append(sinks, escalation.SinkRegistration{Name: "slack", Sink: client})
	}
	if len(sinks) == 0 {
		return nil, nil
	}

	return escalation.NewService(escalation.Options{
		Logger: logger,
		Sinks:  sinks,
	}), nil
}

// RunWithShutdown runs the runner until SIGINT/SIGTERM or until it fails.
func RunWithShutdown(runner *schedadapter.Runner, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := runner.Run(ctx)
	if logger != nil {
		logger.Info("scheduler runtime stopped")
	}
	return err
}
