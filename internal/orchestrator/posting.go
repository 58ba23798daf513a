package orchestrator

import (
	"context"
	"fmt"

	"github.com/amishk599/jobscout/internal/model"
)

// Reanalyze scores a stored posting against prefs and replaces its analysis.
// The classification is appended to the history only while the posting has
// not been moved by hand, so user decisions are never overwritten.
func (o *Orchestrator) Reanalyze(ctx context.Context, externalID string, prefs model.Preferences) (model.AnalysisResult, error) {
	if err := prefs.Validate(); err != nil {
		return model.AnalysisResult{}, err
	}
	view, err := o.store.GetPosting(ctx, externalID)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("reanalyze %s: %w", externalID, err)
	}

	result, err := o.analyzer.Analyze(ctx, view.JobPosting, prefs)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("reanalyze %s: %w", externalID, err)
	}

	err = o.store.WithinTx(ctx, func(tx model.Tx) error {
		if err := tx.SaveAnalysis(ctx, result); err != nil {
			return err
		}
		if view.State.UserSettable() {
			return nil
		}
		state := result.Classify(prefs.RelevanceThreshold)
		return tx.AppendStateTransition(ctx, externalID, state, fmt.Sprintf("reanalyzed, score %.2f", result.RelevanceScore))
	})
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("reanalyze %s: %w", externalID, err)
	}

	o.logger.Info("posting reanalyzed", "posting", externalID, "score", result.RelevanceScore, "analyzer", result.Analyzer)
	return result, nil
}

// Transition records a manual state change. Only user-settable states are
// accepted; relevant and irrelevant come from analysis.
func (o *Orchestrator) Transition(ctx context.Context, externalID string, state model.JobState, notes string) error {
	if !state.UserSettable() {
		return fmt.Errorf("%w: %q cannot be set by hand", model.ErrInvalidState, state)
	}
	if _, err := o.store.GetPosting(ctx, externalID); err != nil {
		return fmt.Errorf("transition %s: %w", externalID, err)
	}
	err := o.store.WithinTx(ctx, func(tx model.Tx) error {
		return tx.AppendStateTransition(ctx, externalID, state, notes)
	})
	if err != nil {
		return fmt.Errorf("transition %s: %w", externalID, err)
	}
	o.logger.Info("posting state changed", "posting", externalID, "state", state)
	return nil
}
