package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredTaskRunsOnSchedule(t *testing.T) {
	s := New(nil)
	var runs int32
	require.NoError(t, s.Register(Task{
		Name: "tick",
		Cron: "@every 1s",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer cancel()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestStopWaitsForRunningTask(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.Register(Task{
		Name: "slow",
		Cron: "@every 10ms",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(50 * time.Millisecond)
			close(finished)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	<-started
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop did not wait for the in-flight task")
	}
}

func TestInvalidCronExpressionIsRejected(t *testing.T) {
	s := New(nil)
	err := s.Register(Task{Name: "bad", Cron: "not-a-cron-expr", Run: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)
}
