package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Task is a unit of background work run on a schedule.
type Task interface {
	Name() string
	Run(ctx context.Context)
}

// Runner fires scheduled tasks. A task whose previous run is still going is
// skipped rather than overlapped.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "jobs")
	logger := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Schedule registers task under a standard five-field cron spec.
func (r *Runner) Schedule(spec string, task Task) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.log.Debug("running task", "task", task.Name())
		task.Run(r.ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule '%s' for %s: %w", spec, task.Name(), err)
	}
	r.log.Info("scheduled task", "task", task.Name(), "schedule", spec)
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling, cancels running tasks and waits for them to return
// or for ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
