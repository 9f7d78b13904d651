package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Runner invokes a job on a fixed cadence. It runs the job once immediately
// on start, then on every tick, until the context is cancelled. Job errors
// are logged; the cadence continues regardless.
type Runner struct {
	name     string
	interval time.Duration
	job      Job
	logger   *slog.Logger
}

func NewRunner(name string, interval time.Duration, job Job, logger *slog.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// Start begins the schedule loop. It blocks until the context is cancelled,
// so callers typically run it in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("scheduler started", "job", r.name, "interval", r.interval.String())

	r.run(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopping", "job", r.name)
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Runner) run(ctx context.Context) {
	if err := r.job(ctx); err != nil {
		r.logger.Error("scheduled job failed", "job", r.name, "error", err)
	}
}
