// Package orchestrator runs the scrape, dedupe, analyze and persist pipeline
// under a single-run lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
)

// DefaultDeadline bounds a whole run. It must stay below the registry's
// stall timeout so a live run is never reported as stalled.
const DefaultDeadline = 20 * time.Minute

// Store is the persistence the pipeline needs: writes for runs, reads for
// re-analysis and manual transitions.
type Store interface {
	model.Store
	model.PostingReader
}

// Recorder receives run outcomes. The metrics package implements it.
type Recorder interface {
	RunFinished(trigger runs.Trigger, status runs.Status, elapsed time.Duration)
	PostingsProcessed(counts runs.Counts)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(runs.Trigger, runs.Status, time.Duration) {}
func (nopRecorder) PostingsProcessed(runs.Counts)                        {}

// RunSummary is what a synchronous Run reports back.
type RunSummary struct {
	RunID   string       `json:"run_id"`
	Trigger runs.Trigger `json:"trigger"`
	runs.Counts
	Err error `json:"-"`
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Deadline time.Duration
	Recorder Recorder
	Now      func() time.Time
}

// Orchestrator owns one pipeline. Run and Start share the same lock, so at
// most one run is in flight per Orchestrator.
type Orchestrator struct {
	source   model.PostingSource
	analyzer model.PostingAnalyzer
	store    Store
	registry *runs.Registry
	recorder Recorder
	deadline time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

func New(
	source model.PostingSource,
	analyzer model.PostingAnalyzer,
	store Store,
	registry *runs.Registry,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		analyzer: analyzer,
		store:    store,
		registry: registry,
		recorder: opts.Recorder,
		deadline: opts.Deadline,
		now:      opts.Now,
		logger:   logger,
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.deadline <= 0 {
		o.deadline = DefaultDeadline
	}
	if stall := registry.StallTimeout(); o.deadline >= stall {
		o.deadline = stall * 9 / 10
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run executes one pipeline run and blocks until it finishes. It fails fast
// with model.ErrAlreadyRunning while another run holds the lock.
func (o *Orchestrator) Run(ctx context.Context, prefs model.Preferences, trigger runs.Trigger) (RunSummary, error) {
	runID, err := o.acquire(trigger)
	if err != nil {
		return RunSummary{}, err
	}
	defer o.mu.Unlock()

	summary := o.execute(ctx, runID, prefs, trigger)
	return summary, summary.Err
}

// Start begins a run in the background and returns its id. The run is
// detached from ctx cancellation but still bounded by the run deadline.
func (o *Orchestrator) Start(ctx context.Context, prefs model.Preferences, trigger runs.Trigger) (string, error) {
	runID, err := o.acquire(trigger)
	if err != nil {
		return "", err
	}

	go func() {
		defer o.mu.Unlock()
		o.execute(context.WithoutCancel(ctx), runID, prefs, trigger)
	}()
	return runID, nil
}

// acquire takes the run lock and registers the run. On success the caller
// owns the lock.
func (o *Orchestrator) acquire(trigger runs.Trigger) (string, error) {
	if !o.mu.TryLock() {
		if id, ok := o.registry.Active(); ok {
			return "", fmt.Errorf("%w: run %s", model.ErrAlreadyRunning, id)
		}
		return "", model.ErrAlreadyRunning
	}
	runID, err := o.registry.Create(trigger)
	if err != nil {
		o.mu.Unlock()
		return "", err
	}
	return runID, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, prefs model.Preferences, trigger runs.Trigger) RunSummary {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	start := o.now()
	logger := o.logger.With("run_id", runID, "trigger", trigger)
	logger.Info("run started")

	summary := RunSummary{RunID: runID, Trigger: trigger}
	err := o.pipeline(ctx, runID, prefs, &summary.Counts, logger)

	status := runs.StatusCompleted
	if err != nil {
		status = runs.StatusFailed
		summary.Err = err
	} else {
		o.event(runID, runs.StepAnalyzing, runs.Complete{Counts: summary.Counts})
	}
	if markErr := o.registry.MarkDone(runID, status, err); markErr != nil {
		logger.Error("marking run done", "error", markErr)
	}

	elapsed := o.now().Sub(start)
	o.recorder.RunFinished(trigger, status, elapsed)
	o.recorder.PostingsProcessed(summary.Counts)

	logger.Info("run finished",
		"status", status,
		"elapsed", elapsed.Round(time.Millisecond),
		"found", summary.Found,
		"duplicates", summary.SkippedDuplicate,
		"analyzed", summary.Analyzed,
		"relevant", summary.Relevant,
		"persisted", summary.Persisted,
		"errors", summary.ScrapeErrors+summary.AnalysisFailed+summary.PersistFailed,
	)
	if err != nil {
		logger.Error("run failed", "error", err)
	}
	return summary
}

func (o *Orchestrator) pipeline(ctx context.Context, runID string, prefs model.Preferences, counts *runs.Counts, logger *slog.Logger) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	queries := prefs.SearchQueries()
	seen := make(map[string]bool)
	var failures []error

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}

		yielded := false
		for posting, err := range o.source.Fetch(ctx, q) {
			if err != nil {
				counts.ScrapeErrors++
				o.event(runID, runs.StepScraping, runs.ScrapeFailed{Query: q.String(), Error: err.Error()})
				logger.Warn("scrape failed", "query", q.String(), "error", err)
				if !yielded {
					failures = append(failures, fmt.Errorf("%s: %w", q, err))
				}
				break
			}
			yielded = true
			o.process(ctx, runID, posting, prefs, seen, counts, logger)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if len(queries) > 0 && len(failures) == len(queries) {
		return fmt.Errorf("every search query failed: %w", errors.Join(failures...))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

// process takes one scraped posting through dedupe, analysis and
// persistence. Failures are recorded and never abort the run.
func (o *Orchestrator) process(ctx context.Context, runID string, p model.JobPosting, prefs model.Preferences, seen map[string]bool, counts *runs.Counts, logger *slog.Logger) {
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = o.now()
	}
	counts.Found++
	o.event(runID, runs.StepScraping, runs.JobFound{ExternalID: p.ExternalID, Title: p.Title, Company: p.Company})

	if seen[p.ExternalID] {
		counts.SkippedDuplicate++
		return
	}
	seen[p.ExternalID] = true

	exists, err := o.store.Exists(ctx, p.ExternalID)
	if err != nil {
		logger.Warn("duplicate check failed", "posting", p.ExternalID, "error", err)
	}
	if exists {
		counts.SkippedDuplicate++
		return
	}

	var analysis *model.AnalysisResult
	result, err := o.analyzer.Analyze(ctx, p, prefs)
	counts.Analyzed++
	if err != nil {
		counts.AnalysisFailed++
		logger.Warn("analysis failed", "posting", p.ExternalID, "error", err)
		o.event(runID, runs.StepAnalyzing, runs.Analyzed{ExternalID: p.ExternalID, Error: err.Error()})
	} else {
		analysis = &result
		relevant := result.Classify(prefs.RelevanceThreshold) == model.StateRelevant
		if relevant {
			counts.Relevant++
		}
		score := result.RelevanceScore
		o.event(runID, runs.StepAnalyzing, runs.Analyzed{ExternalID: p.ExternalID, Score: &score, Relevant: relevant})
	}

	err = o.persist(ctx, p, analysis, prefs.RelevanceThreshold)
	switch {
	case err == nil:
		counts.Persisted++
	case errors.Is(err, model.ErrDuplicatePosting):
		counts.SkippedDuplicate++
	default:
		counts.PersistFailed++
		logger.Error("persist failed", "posting", p.ExternalID, "error", err)
		o.event(runID, runs.StepPersisting, runs.PersistFailed{ExternalID: p.ExternalID, Error: err.Error()})
	}
}

// persist stores the posting, its initial state and, when analysis
// succeeded, the classification and result, all in one transaction.
func (o *Orchestrator) persist(ctx context.Context, p model.JobPosting, analysis *model.AnalysisResult, threshold float64) error {
	return o.store.WithinTx(ctx, func(tx model.Tx) error {
		if err := tx.SavePosting(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendStateTransition(ctx, p.ExternalID, model.StateNew, ""); err != nil {
			return err
		}
		if analysis == nil {
			return nil
		}
		state := analysis.Classify(threshold)
		if err := tx.AppendStateTransition(ctx, p.ExternalID, state, fmt.Sprintf("score %.2f", analysis.RelevanceScore)); err != nil {
			return err
		}
		return tx.SaveAnalysis(ctx, *analysis)
	})
}

func (o *Orchestrator) event(runID, step string, data runs.Payload) {
	if err := o.registry.AppendEvent(runID, step, data); err != nil {
		o.logger.Error("recording run event", "run_id", runID, "step", step, "error", err)
	}
}
