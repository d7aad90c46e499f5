// Package escalation fans out exhausted-notification events to operator sinks.
//
// The retry subsystem itself treats exhaustion as terminal and silent; this
// service is the optional escalation path for operators who want to hear
// about it. With no sinks configured it does nothing.
package escalation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/farmkonnect/scheduler/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the escalation service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches exhaustion events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs an escalation service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger: logger.With("component", "exhaustion_escalation"),
		sinks:  sinks,
	}
}

// NotifyExhaustion fans the payload out to all sinks. Sink failures are
// logged, never returned; a broken escalation channel must not affect the
// retry sweep that raised the event.
func (s *Service) NotifyExhaustion(ctx context.Context, payload notify.ExhaustionPayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendExhaustion(ctx, payload); err != nil {
				s.logger.Error("exhaustion escalation delivery error",
					"sink", entry.Name,
					"notification_id", payload.NotificationID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the service has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
