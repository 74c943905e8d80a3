// Package reaper deletes session rows that are past their retention.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Purger deletes invalidated or expired sessions older than cutoff.
type Purger interface {
	PurgeRetained(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls how often the reaper runs and what it keeps.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
	// Timeout bounds a single purge.
	Timeout time.Duration
}

// Reaper runs the retention purge on a gocron schedule.
type Reaper struct {
	purger    Purger
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler gocron.Scheduler

	started   bool
	startedMu sync.Mutex
}

// New creates a reaper. It does not run until Start is called.
func New(purger Purger, cfg Config, logger *slog.Logger) (*Reaper, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if cfg.Retention < 0 {
		return nil, errors.New("reaper retention must not be negative")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	return &Reaper{
		purger:    purger,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		scheduler: scheduler,
	}, nil
}

// RunOnce purges everything that left its retention window before now.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.cfg.Retention)
	start := time.Now()

	deleted, err := r.purger.PurgeRetained(ctx, cutoff)
	if err != nil {
		r.logger.Error("session purge failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("sessions purged",
			"count", deleted,
			"cutoff", cutoff,
			"duration", time.Since(start),
		)
	}
	return deleted, nil
}

// Start registers the purge job and starts the scheduler. The first purge
// runs immediately.
func (r *Reaper) Start() error {
	r.startedMu.Lock()
	defer r.startedMu.Unlock()

	if r.started {
		return nil
	}

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
			defer cancel()
			_, _ = r.RunOnce(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("session-reaper"),
	)
	if err != nil {
		return err
	}

	r.scheduler.Start()
	r.started = true
	r.logger.Info("session reaper started", "interval", r.cfg.Interval, "retention", r.cfg.Retention)
	return nil
}

// Stop waits for a running purge and shuts the scheduler down.
func (r *Reaper) Stop() error {
	r.startedMu.Lock()
	defer r.startedMu.Unlock()

	if !r.started {
		return nil
	}
	r.started = false
	if err := r.scheduler.Shutdown(); err != nil {
		r.logger.Error("session reaper shutdown with error", "error", err)
		return err
	}
	r.logger.Info("session reaper stopped")
	return nil
}
