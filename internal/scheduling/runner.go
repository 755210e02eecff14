package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"panel-energy/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Task is a named job bound to a trigger. Run receives the scheduled fire instant.
type Task struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context, firedAt time.Time) error
}

// Runner arms tasks against the wall clock. After each fire the next instant
// is recomputed from the trigger, so a task never fires immediately on start.
type Runner struct {
	clock  Clock
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewRunner constructs a Runner.
func NewRunner(clock Clock, logger *zap.Logger) *Runner {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{clock: clock, logger: logger}
}

// Go starts every task in its own goroutine until ctx is cancelled.
func (r *Runner) Go(ctx context.Context, tasks ...Task) {
	for _, task := range tasks {
		if task.Trigger == nil || task.Run == nil {
			continue
		}
		r.wg.Add(1)
		go func(task Task) {
			defer r.wg.Done()
			r.Run(ctx, task)
		}(task)
	}
}

// Wait blocks until all tasks started with Go have returned.
func (r *Runner) Wait() { r.wg.Wait() }

// Run loops a single task until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, task Task) {
	for {
		now := r.clock.Now()
		next := task.Trigger.Next(now)
		r.logger.Debug("task armed",
			zap.String("task", task.Name),
			zap.String("trigger", task.Trigger.String()),
			zap.Time("next", next),
		)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		r.fire(ctx, task, next)
	}
}

func (r *Runner) fire(ctx context.Context, task Task, firedAt time.Time) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		if rec := recover(); rec != nil {
			result = metrics.ResultError
			r.logger.Error("task panicked", zap.String("task", task.Name), zap.String("panic", fmt.Sprint(rec)))
		}
		metrics.ObserveSchedulerFire(task.Name, result, time.Since(start))
	}()

	if err := task.Run(ctx, firedAt); err != nil {
		result = metrics.ResultError
		r.logger.Error("task failed", zap.String("task", task.Name), zap.Time("fired_at", firedAt), zap.Error(err))
		return
	}
	r.logger.Info("task completed", zap.String("task", task.Name), zap.Time("fired_at", firedAt), zap.Duration("took", time.Since(start)))
}
