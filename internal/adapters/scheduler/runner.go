// Package scheduler hosts the process-level runner that ties the job
// scheduler, the retry coordinator and the status publisher together.
package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/farmkonnect/scheduler/config"
	"github.com/farmkonnect/scheduler/internal/core"
	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	"github.com/farmkonnect/scheduler/internal/service"
)

// RetrySweepJobName is the registry name of the built-in retry sweep job.
const RetrySweepJobName = "notification-retry-sweep"

// JobRegistration pairs a job definition with its cron expression so callers
// can declare their jobs up front and hand them to the runner.
type JobRegistration struct {
	Name     string
	Schedule string
	Task     model.Task
}

// RunnerOptions groups dependencies for creating a Runner.
type RunnerOptions struct {
	Scheduler *service.Scheduler    // Required
	Retry     *service.RetryService // Required: registered as the sweep job
	Config    config.SchedulerConfig
	Publisher core.StatusPublisher // Optional: job status read model
	Clock     data.Clock           // Optional: defaults to the system clock
	Logger    *slog.Logger         // Optional: structured logger
	Jobs      []JobRegistration    // Domain jobs to register at startup
}

// Runner drives the scheduler for the lifetime of the process. It registers
// the retry sweep and any domain jobs, starts all bindings, keeps the status
// read model fresh, and unwinds cleanly when the context is cancelled.
type Runner struct {
	scheduler *service.Scheduler
	retry     *service.RetryService
	cfg       config.SchedulerConfig
	publisher core.StatusPublisher
	clock     data.Clock
	logger    *slog.Logger
	jobs      []JobRegistration
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Retry == nil {
		return nil, errors.New("retry service is required")
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

	return &Runner{
		scheduler: opts.Scheduler,
		retry:     opts.Retry,
		cfg:       cfg,
		publisher: opts.Publisher,
		clock:     clock,
		logger:    logger.With("component", "runner"),
		jobs:      opts.Jobs,
	}, nil
}

// Run registers jobs, starts the scheduler and blocks until ctx is cancelled.
// Registration errors abort before anything is started.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.scheduler.Register(RetrySweepJobName, r.cfg.RetrySweepSchedule, r.retry.Task()); err != nil {
		return err
	}
	for _, reg := range r.jobs {
		if err := r.scheduler.Register(reg.Name, reg.Schedule, reg.Task); err != nil {
			return err
		}
	}

	r.scheduler.StartAll(ctx)
	defer r.scheduler.StopAll()

	group, groupCtx := errgroup.WithContext(ctx)

	if r.publisher != nil {
		group.Go(func() error {
			return r.publishLoop(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return groupCtx.Err()
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// publishLoop mirrors job status snapshots to the read model at a fixed
// interval. Publish failures are logged and retried on the next interval.
func (r *Runner) publishLoop(ctx context.Context) error {
	r.publishOnce(ctx)

	for {
		tick := make(chan struct{})
		timer := r.clock.AfterFunc(r.cfg.StatusPublishInterval, func() {
			close(tick)
		})
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-tick:
			r.publishOnce(ctx)
		}
	}
}

func (r *Runner) publishOnce(ctx context.Context) {
	if err := r.publisher.PublishJobStatuses(ctx, r.scheduler.JobsStatus()); err != nil {
		r.logger.WarnContext(ctx, "publish job status failed", "error", err)
	}
}
