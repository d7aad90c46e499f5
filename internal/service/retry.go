package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/farmkonnect/scheduler/config"
	"github.com/farmkonnect/scheduler/internal/core"
	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/backoff"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	"github.com/farmkonnect/scheduler/internal/observability/metrics"
	"github.com/farmkonnect/scheduler/internal/observability/notify"
	"github.com/farmkonnect/scheduler/internal/observability/statsd"
	"github.com/farmkonnect/scheduler/internal/service/escalation"
)

// RetryServiceOptions groups dependencies for RetryService.
type RetryServiceOptions struct {
	Store      core.NotificationStore      // Required: durable retry queue
	Transport  core.NotificationTransport  // Required: delivery collaborator
	Config     config.RetryConfig          // Backoff and batch configuration
	Clock      data.Clock                  // Optional: defaults to the system clock
	Logger     *slog.Logger                // Optional: structured logger
	Metrics    statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
	Escalation *escalation.Service         // Optional: operator alerting on exhaustion
}

// RetryService is the notification retry coordinator. It runs as one of the
// scheduler's jobs: each sweep picks up due pending/retrying notifications,
// attempts delivery, and either finalises or reschedules them with
// exponential backoff. It also serves the read-only retry statistics API.
type RetryService struct {
	store      core.NotificationStore
	transport  core.NotificationTransport
	cfg        config.RetryConfig
	policy     backoff.Policy
	clock      data.Clock
	logger     *slog.Logger
	metrics    statsd.Sink
	escalation *escalation.Service
}

// NewRetryService constructs a RetryService.
func NewRetryService(opts RetryServiceOptions) (*RetryService, error) {
	if opts.Store == nil {
		return nil, errors.New("notification store is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("notification transport is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	clock := opts.Clock
	if clock == nil {
		clock = data.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryService{
		store:     opts.Store,
		transport: opts.Transport,
		cfg:       cfg,
		policy: backoff.Policy{
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.BackoffMultiplier,
		},
		clock:      clock,
		logger:     logger.With("component", "retry_coordinator"),
		metrics:    opts.Metrics,
		escalation: opts.Escalation,
	}, nil
}

// Task adapts the sweep for registration as a scheduled job.
func (s *RetryService) Task() model.Task {
	return func(ctx context.Context) error {
		_, err := s.ProcessFailedNotifications(ctx)
		return err
	}
}

// ProcessFailedNotifications performs one sweep over the retry queue.
//
// Every pending/retrying notification with next_attempt_at <= now gets one
// delivery attempt. Successes become delivered; failures either reschedule
// under the backoff policy or, at MaxRetries attempts, become exhausted.
// A second sweep at the same instant with an unchanged backlog finds no due
// rows and reports all-zero counts.
func (s *RetryService) ProcessFailedNotifications(ctx context.Context) (model.RetrySweepResult, error) {
	started := s.clock.Now()

	due, err := s.store.FindDue(ctx, started, s.cfg.BatchSize)
	if err != nil {
		err = fmt.Errorf("find due notifications: %w", err)
		metrics.EmitRetrySweep(s.metrics, metrics.RetrySweep{Err: err})
		return model.RetrySweepResult{}, err
	}

	var result model.RetrySweepResult
	for _, n := range due {
		result.Processed++
		s.processOne(ctx, n, &result)
	}

	if result.Processed > 0 {
		s.logger.InfoContext(ctx, "retry sweep finished",
			"processed", result.Processed,
			"successful", result.Successful,
			"scheduled", result.Scheduled,
			"exhausted", result.Exhausted,
		)
	}
	metrics.EmitRetrySweep(s.metrics, metrics.RetrySweep{
		Result:   result,
		Duration: s.clock.Now().Sub(started),
	})
	return result, nil
}

// processOne attempts delivery of a single notification and records the
// outcome. Store write failures are logged and skipped so one bad row cannot
// stall the rest of the sweep.
func (s *RetryService) processOne(ctx context.Context, n model.Notification, result *model.RetrySweepResult) {
	deliverErr := s.transport.Deliver(ctx, n)
	now := s.clock.Now()

	if deliverErr == nil {
		if err := s.store.MarkDelivered(ctx, n.ID, now); err != nil {
			s.logger.WarnContext(ctx, "mark delivered failed",
				"notification_id", n.ID, "error", err)
			return
		}
		result.Successful++
		return
	}

	attempt := n.AttemptCount + 1
	if attempt >= s.cfg.MaxRetries {
		s.exhaust(ctx, n, attempt, deliverErr)
		result.Exhausted++
		return
	}

	next := now.Add(backoff.Delay(attempt, s.policy))
	err := s.store.ScheduleRetry(ctx, model.ScheduleRetryParams{
		ID:            n.ID,
		AttemptCount:  attempt,
		NextAttemptAt: next,
		LastError:     deliverErr.Error(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "schedule retry failed",
			"notification_id", n.ID, "error", err)
		return
	}
	result.Scheduled++
	s.logger.DebugContext(ctx, "notification delivery failed, retry scheduled",
		"notification_id", n.ID,
		"attempt", attempt,
		"next_attempt_at", next,
		"error", deliverErr,
	)
}

// exhaust finalises a notification that failed its last permitted attempt.
func (s *RetryService) exhaust(ctx context.Context, n model.Notification, attempt int, deliverErr error) {
	if err := s.store.MarkExhausted(ctx, n.ID, attempt, deliverErr.Error()); err != nil {
		s.logger.WarnContext(ctx, "mark exhausted failed",
			"notification_id", n.ID, "error", err)
		return
	}

	s.logger.WarnContext(ctx, "notification delivery exhausted",
		"notification_id", n.ID,
		"channel", n.Channel,
		"attempts", attempt,
		"error", deliverErr,
	)

	if s.escalation != nil && s.escalation.Enabled() {
		s.escalation.NotifyExhaustion(ctx, notify.ExhaustionPayload{
			NotificationID: n.ID,
			Channel:        n.Channel,
			AttemptCount:   attempt,
			LastError:      deliverErr.Error(),
			OccurredAt:     s.clock.Now(),
		})
	}
}

// GetRetryStatistics reports aggregates over the retry queue's history:
// every notification that ever entered the retry path, how many attempts
// were spent, and the delivered/exhausted split. Read-only, no side effects.
func (s *RetryService) GetRetryStatistics(ctx context.Context) (model.RetryStatistics, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return model.RetryStatistics{}, fmt.Errorf("aggregate retry counts: %w", err)
	}

	stats := model.RetryStatistics{
		TotalFailed:  counts.TotalFailed,
		TotalRetried: counts.TotalAttempts,
	}
	if counts.TotalFailed > 0 {
		stats.AverageRetries = float64(counts.TotalAttempts) / float64(counts.TotalFailed)
	}
	if denom := counts.Delivered + counts.Exhausted; denom > 0 {
		stats.SuccessRate = float64(counts.Delivered) / float64(denom)
	}
	return stats, nil
}

// NextAttemptDelay exposes the backoff schedule for a given attempt count,
// mainly for operational introspection.
func (s *RetryService) NextAttemptDelay(attempt int) time.Duration {
	return backoff.Delay(attempt, s.policy)
}
