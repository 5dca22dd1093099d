package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/job/runner"
	"zipbatch/pkg/batch/util/exception"
)

type funcStep struct {
	name string
	fn   func(se *core.StepExecution) error
	ran  bool
}

func (s *funcStep) StepName() string { return s.name }

func (s *funcStep) Execute(ctx context.Context, je *core.JobExecution, se *core.StepExecution) error {
	s.ran = true
	if err := s.fn(se); err != nil {
		se.MarkAsFailed(err)
		return err
	}
	se.MarkAsCompleted()
	return nil
}

type recordingListener struct {
	events []string
}

func (l *recordingListener) BeforeJob(ctx context.Context, je *core.JobExecution) {
	l.events = append(l.events, "before:"+string(je.Status))
}

func (l *recordingListener) AfterJob(ctx context.Context, je *core.JobExecution) {
	l.events = append(l.events, "after:"+string(je.Status))
}

func TestSimpleJob_Completes(t *testing.T) {
	first := &funcStep{name: "first", fn: func(se *core.StepExecution) error {
		se.ExecutionContext.Put("first.done", true)
		return nil
	}}
	second := &funcStep{name: "second", fn: func(se *core.StepExecution) error { return nil }}
	listener := &recordingListener{}

	job := runner.NewSimpleJob("job", first, second)
	job.RegisterListener(listener)
	je := core.NewJobExecution("job", core.NewJobParameters())

	require.NoError(t, job.Run(context.Background(), je))
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Equal(t, core.ExitStatusCompleted, je.ExitStatus)
	require.Len(t, je.StepExecutions, 2)
	assert.Equal(t, "second", je.StepExecutions[1].StepName)
	v, ok := je.ExecutionContext.Get("first.done")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	assert.Equal(t, []string{"before:STARTED", "after:COMPLETED"}, listener.events)
	assert.False(t, je.EndTime.IsZero())
}

func TestSimpleJob_StopsAtFailedStep(t *testing.T) {
	boom := errors.New("boom")
	first := &funcStep{name: "first", fn: func(se *core.StepExecution) error { return boom }}
	second := &funcStep{name: "second", fn: func(se *core.StepExecution) error { return nil }}
	job := runner.NewSimpleJob("job", first, second)
	je := core.NewJobExecution("job", core.NewJobParameters())

	assert.ErrorIs(t, job.Run(context.Background(), je), boom)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	assert.False(t, second.ran)
	assert.Len(t, je.Failures, 1)
}

func TestSimpleJob_Cancelled(t *testing.T) {
	step := &funcStep{name: "first", fn: func(se *core.StepExecution) error { return context.Canceled }}
	je := core.NewJobExecution("job", core.NewJobParameters())
	assert.ErrorIs(t, runner.NewSimpleJob("job", step).Run(context.Background(), je), context.Canceled)
	assert.Equal(t, core.BatchStatusStopped, je.Status)
}

func TestSimpleJob_InvalidUse(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, runner.NewSimpleJob("job").Run(ctx, core.NewJobExecution("job", core.NewJobParameters())), exception.ErrInvalidConfiguration)
	assert.ErrorIs(t, runner.NewSimpleJob("job").Run(ctx, nil), exception.ErrInvalidState)

	step := &funcStep{name: "first", fn: func(se *core.StepExecution) error { return nil }}
	je := core.NewJobExecution("job", core.NewJobParameters())
	job := runner.NewSimpleJob("job", step)
	require.NoError(t, job.Run(ctx, je))
	assert.ErrorIs(t, job.Run(ctx, je), exception.ErrInvalidState)
}
