package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/orchestrator"
	"github.com/amishk599/jobscout/internal/store"
	"github.com/amishk599/jobscout/internal/tui"
)

const browseLimit = 500

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored postings interactively (TUI)",
	Long:  "Shows the state picker, then the split-pane postings browser. Postings can be marked or re-analyzed from the detail view.",
	RunE:  runBrowseCmd,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// browseBackend joins the store's history reads with the orchestrator's
// posting actions.
type browseBackend struct {
	store *store.SQLiteStore
	orch  *orchestrator.Orchestrator
}

func (b browseBackend) StateHistory(ctx context.Context, id string) ([]model.StateTransition, error) {
	return b.store.StateHistory(ctx, id)
}

func (b browseBackend) Transition(ctx context.Context, id string, state model.JobState, notes string) error {
	return b.orch.Transition(ctx, id, state, notes)
}

func (b browseBackend) Reanalyze(ctx context.Context, id string, prefs model.Preferences) (model.AnalysisResult, error) {
	return b.orch.Reanalyze(ctx, id, prefs)
}

func runBrowseCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	// Any log output once the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := buildPipeline(cfg, sqlStore, silentLogger)
	if err != nil {
		return err
	}
	backend := browseBackend{store: sqlStore, orch: p.orch}

	for {
		stats, err := sqlStore.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if stats.Total == 0 {
			fmt.Println("No postings stored yet. Run `jobscout run` first.")
			return nil
		}

		options := tui.StateOptions(stats)
		choice, err := tui.RunStatePicker(options)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if choice == tui.PickQuit {
			return nil
		}
		opt := options[choice]

		label := "all postings"
		if opt.State != "" {
			label = string(opt.State) + " postings"
		}
		postings, err := tui.RunLoader(label, func(ctx context.Context) ([]model.PostingView, error) {
			return sqlStore.ListPostings(ctx, model.PostingFilter{State: opt.State, Limit: browseLimit})
		})
		if err != nil {
			fmt.Printf("Error loading postings: %v\n", err)
			continue
		}

		wantQuit, err := tui.RunBrowser(postings, backend, cfg.Preferences)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
		// else: loop → back to picker
	}
}
