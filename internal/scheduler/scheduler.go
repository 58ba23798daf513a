// Package scheduler triggers scheduled pipeline runs from the stored
// schedule configuration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/orchestrator"
	"github.com/amishk599/jobscout/internal/runs"
)

// DefaultTick is how often the schedule is evaluated.
const DefaultTick = time.Minute

// Runner starts a pipeline run and blocks until it finishes.
type Runner interface {
	Run(ctx context.Context, prefs model.Preferences, trigger runs.Trigger) (orchestrator.RunSummary, error)
}

// ScheduleStore persists the schedule between ticks and restarts.
type ScheduleStore interface {
	GetSchedule(ctx context.Context) (model.ScheduleConfig, error)
	SaveSchedule(ctx context.Context, cfg model.ScheduleConfig) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDue returns when cfg is next due. The reference point is LastRunAt,
// or since when the schedule has never fired. Daily and weekly schedules
// fire at the next occurrence strictly after the reference point; a
// custom_interval schedule that has never fired is due at since.
func NextDue(cfg model.ScheduleConfig, since time.Time) (time.Time, error) {
	if err := cfg.Validate(); err != nil {
		return time.Time{}, err
	}
	ref := since
	if cfg.LastRunAt != nil {
		ref = *cfg.LastRunAt
	}

	var sched cron.Schedule
	switch cfg.Type {
	case model.ScheduleDaily:
		clock, _ := model.ParseClock(cfg.ExecutionTime)
		spec := fmt.Sprintf("%d %d * * *", clock.Minute, clock.Hour)
		s, err := parser.Parse(spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", model.ErrInvalidSchedule, err)
		}
		sched = s
	case model.ScheduleWeekly:
		day, clock, _ := model.ParseWeekly(cfg.ExecutionTime)
		spec := fmt.Sprintf("%d %d * * %d", clock.Minute, clock.Hour, int(day))
		s, err := parser.Parse(spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", model.ErrInvalidSchedule, err)
		}
		sched = s
	default:
		if cfg.LastRunAt == nil {
			return since, nil
		}
		sched = cron.Every(time.Duration(cfg.IntervalHours) * time.Hour)
	}
	return sched.Next(ref), nil
}

// Scheduler evaluates the stored schedule on every tick and triggers at
// most one run per due time.
type Scheduler struct {
	runner  Runner
	store   ScheduleStore
	prefs   func() model.Preferences
	tick    time.Duration
	now     func() time.Time
	started time.Time
	logger  *slog.Logger
}

// NewScheduler creates a scheduler. prefs is read on every trigger so edits
// to preferences apply to the next run.
func NewScheduler(runner Runner, store ScheduleStore, prefs func() model.Preferences, tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		runner:  runner,
		store:   store,
		prefs:   prefs,
		tick:    tick,
		now:     time.Now,
		started: time.Now(),
		logger:  logger,
	}
}

// Run evaluates the schedule immediately and then on every tick. It returns
// nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "tick", s.tick.String())

	s.evaluate(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("schedule tick failed", "error", err)
	}
}

// Tick triggers a run when the schedule is enabled and due. It reports
// whether a run was attempted to completion. A run rejected because another
// run holds the lock leaves last_run_at untouched so the next tick retries.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	cfg, err := s.store.GetSchedule(ctx)
	if errors.Is(err, model.ErrNotFound) {
		s.logger.Debug("no schedule configured")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading schedule: %w", err)
	}
	if !cfg.Enabled {
		return false, nil
	}

	now := s.now()
	due, err := NextDue(cfg, s.started)
	if err != nil {
		return false, err
	}
	if now.Before(due) {
		return false, nil
	}

	s.logger.Info("schedule due", "type", cfg.Type, "execution_time", cfg.ExecutionTime, "due", due)
	summary, err := s.runner.Run(ctx, s.prefs(), runs.TriggerScheduled)
	if errors.Is(err, model.ErrAlreadyRunning) {
		s.logger.Info("run already in progress, skipping scheduled trigger", "error", err)
		return false, nil
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "run_id", summary.RunID, "error", err)
	}

	// Re-read so edits made while the run was in flight are kept.
	latest, err := s.store.GetSchedule(ctx)
	if err != nil {
		latest = cfg
	}
	latest.LastRunAt = &now
	if err := s.store.SaveSchedule(ctx, latest); err != nil {
		return true, fmt.Errorf("saving last run time: %w", err)
	}
	return true, nil
}

// EnsureSchedule seeds the store with defaults when no schedule has been
// saved yet, and returns the stored schedule.
func EnsureSchedule(ctx context.Context, store ScheduleStore, defaults model.ScheduleConfig) (model.ScheduleConfig, error) {
	cfg, err := store.GetSchedule(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.ScheduleConfig{}, fmt.Errorf("loading schedule: %w", err)
	}
	if err := defaults.Validate(); err != nil {
		return model.ScheduleConfig{}, err
	}
	if err := store.SaveSchedule(ctx, defaults); err != nil {
		return model.ScheduleConfig{}, fmt.Errorf("seeding schedule: %w", err)
	}
	return defaults, nil
}
