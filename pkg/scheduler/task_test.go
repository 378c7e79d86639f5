package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestTaskStartIsIdempotent(t *testing.T) {
	task := NewTask("test")
	runs := atomic.NewInt32(0)
	loop := func(ctx context.Context) {
		runs.Inc()
		<-ctx.Done()
	}

	assert.False(t, task.Running())
	assert.True(t, task.Start(loop))
	assert.False(t, task.Start(loop))
	assert.True(t, task.Running())

	task.Stop()
	task.Stop()
	require.NoError(t, task.Wait(context.Background()))
	assert.False(t, task.Running())
	assert.Equal(t, int32(1), runs.Load())

	assert.True(t, task.Start(loop))
	task.Stop()
	require.NoError(t, task.Wait(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
}

func TestTaskStopBeforeStart(t *testing.T) {
	task := NewTask("idle")
	task.Stop()
	assert.NoError(t, task.Wait(context.Background()))
}

func TestTaskWaitTimeout(t *testing.T) {
	task := NewTask("stubborn")
	release := make(chan struct{})
	task.Start(func(ctx context.Context) { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	task.Stop()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, task.Running())
}

func TestSchedulerStopAll(t *testing.T) {
	s := New()
	for _, name := range []string{TaskScanner, TaskAlarm, TaskLogger} {
		s.Task(name).Start(func(ctx context.Context) { <-ctx.Done() })
	}
	assert.Same(t, s.Task(TaskAlarm), s.Task(TaskAlarm))
	assert.Equal(t, []string{TaskAlarm, TaskLogger, TaskScanner}, s.Running())

	s.StopAll()
	require.NoError(t, s.WaitAll(time.Second))
	assert.Empty(t, s.Running())
}

func TestSchedulerWaitAllTimeout(t *testing.T) {
	s := New()
	release := make(chan struct{})
	defer close(release)
	s.Task(TaskLogger).Start(func(ctx context.Context) { <-release })

	s.StopAll()
	err := s.WaitAll(20 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), TaskLogger)
}
