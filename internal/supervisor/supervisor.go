// Package supervisor runs one goroutine per bot and keeps their failure
// domains isolated: a panic or terminal failure in one bot never interrupts
// another. Shutdown is broadcast by cancelling the shared context; bots that
// fail to unwind within the grace period are reported failed, not waited on
// forever.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/persona-hq/persona/internal/bot"
)

// ErrGracePeriodExceeded marks a bot that was still running when the
// shutdown grace period expired.
var ErrGracePeriodExceeded = errors.New("supervisor: shutdown grace period exceeded")

// Task is one supervised unit of work. *bot.Runtime satisfies it; tests
// substitute fakes.
type Task interface {
	Name() string
	Run(ctx context.Context) bot.Outcome
}

// Options is supervisor policy.
type Options struct {
	// GracePeriod bounds how long RunAll waits for tasks to unwind after
	// ctx is cancelled. Zero means 10s.
	GracePeriod time.Duration

	Logger *slog.Logger
}

// RunAll runs every task to a terminal outcome and returns one outcome per
// task, index-aligned with tasks. It returns when all tasks finish, or when
// ctx has been cancelled and the grace period has expired; in the latter
// case unfinished tasks are reported Failed with ErrGracePeriodExceeded and
// their goroutines are abandoned.
func RunAll(ctx context.Context, tasks []Task, opts Options) []bot.Outcome {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]bot.Outcome, len(tasks))
	finished := make([]bool, len(tasks))
	var mu sync.Mutex

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			outcome := runIsolated(ctx, task, logger)

			mu.Lock()
			defer mu.Unlock()
			// A task beaten to the finish line by the grace period keeps
			// its timeout outcome; the late result is only logged.
			if finished[i] {
				logger.Warn("bot finished after grace period, result discarded",
					"bot", task.Name(), "phase", outcome.Phase)
				return nil
			}
			finished[i] = true
			results[i] = outcome
			return nil
		})
	}

	allDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		return results
	case <-ctx.Done():
	}

	logger.Info("shutdown requested, waiting for bots", "grace", opts.GracePeriod)
	select {
	case <-allDone:
		return results
	case <-time.After(opts.GracePeriod):
	}

	mu.Lock()
	defer mu.Unlock()
	for i, task := range tasks {
		if finished[i] {
			continue
		}
		finished[i] = true
		logger.Error("bot did not stop within grace period", "bot", task.Name())
		results[i] = bot.Outcome{
			Bot:   task.Name(),
			Phase: bot.PhaseFailed,
			Err:   ErrGracePeriodExceeded,
		}
	}
	return results
}

// runIsolated converts a panicking task into a Failed outcome so one bot's
// bug cannot take down its siblings. The recover must live here, in the
// task's own goroutine; errgroup re-raises panics from Wait otherwise.
func runIsolated(ctx context.Context, task Task, logger *slog.Logger) (outcome bot.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("bot panicked", "bot", task.Name(), "panic", p)
			outcome = bot.Outcome{
				Bot:   task.Name(),
				Phase: bot.PhaseFailed,
				Err:   fmt.Errorf("supervisor: bot %s panicked: %v", task.Name(), p),
			}
		}
	}()
	return task.Run(ctx)
}

// AnyFailed reports whether any outcome is terminal failure. Drives the
// process exit code.
func AnyFailed(outcomes []bot.Outcome) bool {
	for _, o := range outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}
