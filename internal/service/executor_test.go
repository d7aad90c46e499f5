package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
)

func newTestExecutor(clock data.Clock) *Executor {
	return NewExecutor(ExecutorOptions{Clock: clock})
}

func TestExecutor_Execute_Success(t *testing.T) {
	clock := data.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := newTestExecutor(clock)

	ran := false
	job, err := NewRegistry().Register("ok", "0 * * * *", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, executor.Execute(context.Background(), job, model.TriggerManual))
	assert.True(t, ran)

	view := job.View()
	assert.Equal(t, model.JobStatusCompleted, view.Status)
	require.NotNil(t, view.LastRun)
	assert.Equal(t, clock.Now(), *view.LastRun)
	assert.Nil(t, view.LastError)
}

func TestExecutor_Execute_FailureIsContained(t *testing.T) {
	clock := data.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := newTestExecutor(clock)

	taskErr := errors.New("soil sensor unreachable")
	job, err := NewRegistry().Register("flaky", "0 * * * *", func(ctx context.Context) error {
		return taskErr
	})
	require.NoError(t, err)

	err = executor.Execute(context.Background(), job, model.TriggerManual)
	require.ErrorIs(t, err, taskErr)

	view := job.View()
	assert.Equal(t, model.JobStatusFailed, view.Status)
	require.NotNil(t, view.LastError)
	assert.Equal(t, "soil sensor unreachable", *view.LastError)
}

func TestExecutor_Execute_SuccessClearsLastError(t *testing.T) {
	clock := data.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := newTestExecutor(clock)

	calls := 0
	job, err := NewRegistry().Register("recovering", "0 * * * *", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)

	require.Error(t, executor.Execute(context.Background(), job, model.TriggerManual))
	require.NotNil(t, job.View().LastError)

	require.NoError(t, executor.Execute(context.Background(), job, model.TriggerManual))
	view := job.View()
	assert.Equal(t, model.JobStatusCompleted, view.Status)
	assert.Nil(t, view.LastError)
}

func TestExecutor_Execute_PanicBecomesFailure(t *testing.T) {
	clock := data.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := newTestExecutor(clock)

	job, err := NewRegistry().Register("panicky", "0 * * * *", func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	err = executor.Execute(context.Background(), job, model.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked")
	assert.Equal(t, model.JobStatusFailed, job.Status())
}

func TestExecutor_Execute_SkipsWhileRunning(t *testing.T) {
	clock := data.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := newTestExecutor(clock)

	job, err := NewRegistry().Register("slow", "0 * * * *", noopTask)
	require.NoError(t, err)

	// Simulate an in-flight execution.
	require.True(t, job.tryBeginRun())

	err = executor.Execute(context.Background(), job, model.TriggerCron)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, uint64(1), job.SkippedRuns())

	// The in-flight run is untouched.
	assert.Equal(t, model.JobStatusRunning, job.Status())
}
