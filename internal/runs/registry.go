// Package runs tracks the status of pipeline runs in memory so clients can
// poll progress.
package runs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobscout/internal/model"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Step is a named group of events in insertion order.
type Step struct {
	Name   string  `json:"name"`
	Events []Event `json:"events"`
}

// RunStatus is a snapshot of one run.
type RunStatus struct {
	RunID       string     `json:"run_id"`
	Trigger     Trigger    `json:"trigger"`
	Status      Status     `json:"status"`
	CurrentStep string     `json:"current_step"`
	Steps       []Step     `json:"steps"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s.Status != StatusRunning
}

// Events returns all events across steps in step order.
func (s RunStatus) Events() []Event {
	var out []Event
	for _, st := range s.Steps {
		out = append(out, st.Events...)
	}
	return out
}

func (s RunStatus) clone() RunStatus {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		out.Steps[i] = Step{Name: st.Name, Events: slices.Clone(st.Events)}
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

const (
	DefaultStallTimeout = 30 * time.Minute
	DefaultRetention    = 10 * time.Minute
)

// Options configures a Registry. Zero values fall back to the defaults.
type Options struct {
	StallTimeout time.Duration
	Retention    time.Duration
	Now          func() time.Time
	NewID        func() string
}

// Registry is the shared, mutex-guarded record of runs. All methods are safe
// for concurrent use; Get returns copies.
type Registry struct {
	mu     sync.RWMutex
	runs   map[string]*RunStatus
	stall  time.Duration
	retain time.Duration
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	r := &Registry{
		runs:   make(map[string]*RunStatus),
		stall:  opts.StallTimeout,
		retain: opts.Retention,
		now:    opts.Now,
		newID:  opts.NewID,
		logger: logger,
	}
	if r.stall <= 0 {
		r.stall = DefaultStallTimeout
	}
	if r.retain <= 0 {
		r.retain = DefaultRetention
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// StallTimeout is the age after which a running run is reported failed.
func (r *Registry) StallTimeout() time.Duration {
	return r.stall
}

// Create registers a new running run. It fails with model.ErrAlreadyRunning
// while another run is still running and not stalled.
func (r *Registry) Create(trigger Trigger) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, run := range r.runs {
		r.markIfStalled(run, now)
		if run.Status == StatusRunning {
			return "", fmt.Errorf("%w: run %s", model.ErrAlreadyRunning, run.RunID)
		}
	}

	id := r.newID()
	r.runs[id] = &RunStatus{
		RunID:       id,
		Trigger:     trigger,
		Status:      StatusRunning,
		CurrentStep: StepInit,
		Steps:       []Step{{Name: StepInit}},
		StartedAt:   now,
	}
	return id, nil
}

// AppendEvent adds an event to the named step, creating the step on first use,
// and makes it the current step. Events for finished runs are dropped.
func (r *Registry) AppendEvent(runID, step string, data Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if run.Terminal() {
		return nil
	}

	appendEvent(run, step, Event{Data: data, Timestamp: r.now()})
	return nil
}

func appendEvent(run *RunStatus, step string, ev Event) {
	run.CurrentStep = step
	for i := range run.Steps {
		if run.Steps[i].Name == step {
			run.Steps[i].Events = append(run.Steps[i].Events, ev)
			return
		}
	}
	run.Steps = append(run.Steps, Step{Name: step, Events: []Event{ev}})
}

// MarkDone moves a running run to a terminal status. A run that is already
// terminal keeps its first outcome.
func (r *Registry) MarkDone(runID string, status Status, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if run.Terminal() {
		return nil
	}
	r.finish(run, status, runErr, r.now())
	return nil
}

// Get returns a snapshot of the run. Unknown or evicted runs report false.
// A run older than the stall timeout that is still running is reported, and
// recorded, as failed.
func (r *Registry) Get(runID string) (RunStatus, bool) {
	r.mu.RLock()
	run, ok := r.runs[runID]
	if !ok {
		r.mu.RUnlock()
		return RunStatus{}, false
	}
	if !r.stalled(run, r.now()) {
		snap := run.clone()
		r.mu.RUnlock()
		return snap, true
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok = r.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	r.markIfStalled(run, r.now())
	return run.clone(), true
}

// Active returns the id of the run currently running, if any.
func (r *Registry) Active() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	for id, run := range r.runs {
		if run.Status == StatusRunning && !r.stalled(run, now) {
			return id, true
		}
	}
	return "", false
}

// List returns snapshots of every retained run, newest first.
func (r *Registry) List() []RunStatus {
	r.Sweep()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunStatus, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.clone())
	}
	slices.SortFunc(out, func(a, b RunStatus) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out
}

// Sweep fails stalled runs and evicts finished runs past retention.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, run := range r.runs {
		r.markIfStalled(run, now)
		if run.EndedAt != nil && now.Sub(*run.EndedAt) >= r.retain {
			delete(r.runs, id)
			r.logger.Debug("evicted run", "run_id", id, "status", run.Status)
		}
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) stalled(run *RunStatus, now time.Time) bool {
	return run.Status == StatusRunning && now.Sub(run.StartedAt) > r.stall
}

// markIfStalled must be called with the write lock held.
func (r *Registry) markIfStalled(run *RunStatus, now time.Time) {
	if !r.stalled(run, now) {
		return
	}
	r.logger.Warn("run stalled", "run_id", run.RunID, "started_at", run.StartedAt, "stall_timeout", r.stall)
	r.finish(run, StatusFailed, fmt.Errorf("%w: no completion after %s", model.ErrStalledRun, r.stall), now)
}

func (r *Registry) finish(run *RunStatus, status Status, runErr error, now time.Time) {
	if runErr != nil {
		run.Error = runErr.Error()
		appendEvent(run, run.CurrentStep, Event{Data: Failed{Error: runErr.Error()}, Timestamp: now})
	}
	run.Status = status
	run.EndedAt = &now
}
