// Package scheduler runs the gateway's periodic background sweeps — cooldown
// expiry refresh and telemetry retention pruning — on cron schedules,
// grounded on the reference retention scheduler's robfig/cron/v3 usage.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one scheduled unit of work. Errors are logged, never fatal: a
// failed sweep should not bring down the gateway, only be retried on the
// next tick.
type Task struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a cron.Cron, running each registered Task's Run in its
// own goroutine-per-tick (cron's default), logging outcome via zap.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// New builds a scheduler. ctx cancellation stops it automatically once
// Start has been called.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cron: cron.New(), logger: logger}
}

// Register adds a task to run on its cron schedule. Must be called before
// Start.
func (s *Scheduler) Register(t Task) error {
	_, err := s.cron.AddFunc(t.Cron, func() {
		if err := t.Run(context.Background()); err != nil {
			s.logger.Warn("scheduled task failed", zap.String("task", t.Name), zap.Error(err))
		}
	})
	return err
}

// Start begins running registered tasks and stops them when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler, waiting for any in-flight task to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false
}
