package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// janitorParser parses standard 5-field cron expressions (minute, hour,
// dom, month, dow).
var janitorParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

const defaultJanitorSchedule = "*/10 * * * *"

// JanitorConfig holds the dependencies for the task janitor.
type JanitorConfig struct {
	Registry  *Registry
	Logger    *slog.Logger
	Retention time.Duration // how long finished tasks are kept
	Schedule  string        // cron expression for sweeps; defaults to every 10 minutes
}

// Janitor periodically drops finished tasks older than the retention
// window. It only exists when retention is enabled; the default registry
// keeps tasks until the process exits.
type Janitor struct {
	registry  *Registry
	logger    *slog.Logger
	retention time.Duration
	schedule  cronlib.Schedule

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a Janitor. Returns an error for a malformed
// schedule expression.
func NewJanitor(cfg JanitorConfig) (*Janitor, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultJanitorSchedule
	}
	schedule, err := janitorParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		registry:  cfg.Registry,
		logger:    logger,
		retention: cfg.Retention,
		schedule:  schedule,
	}, nil
}

// Start begins the sweep loop in a background goroutine.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.loop(ctx)
	j.logger.Info("task janitor started", "retention", j.retention)
}

// Stop cancels the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	j.logger.Info("task janitor stopped")
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.Sweep()
		}
	}
}

// Sweep runs one retention pass.
func (j *Janitor) Sweep() {
	removed := j.registry.Prune(time.Now().UTC().Add(-j.retention))
	if removed > 0 {
		j.logger.Info("pruned finished tasks", "removed", removed, "retention", j.retention)
	}
}
