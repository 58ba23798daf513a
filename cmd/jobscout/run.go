package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/runs"
	"github.com/amishk599/jobscout/internal/tui"
)

var runWatch bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and exit",
	Long:  "Scrape, analyze and persist once using the configured preferences. With --watch the run is followed live in the terminal.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "follow the run in an interactive view")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	// Log output corrupts the live view, so watched runs log nowhere.
	pipelineLogger := logger
	if runWatch {
		pipelineLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	p, err := buildPipeline(cfg, sqlStore, pipelineLogger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !runWatch {
		summary, err := p.orch.Run(ctx, cfg.Preferences, runs.TriggerManual)
		if summary.RunID != "" {
			renderCounts(os.Stdout, summary.Counts)
		}
		if err != nil {
			logger.Error("run failed", "run_id", summary.RunID, "error", err)
			os.Exit(1)
		}
		logger.Info("run complete", "run_id", summary.RunID)
		return nil
	}

	runID, err := p.orch.Start(ctx, cfg.Preferences, runs.TriggerManual)
	if err != nil {
		logger.Error("could not start run", "error", err)
		os.Exit(1)
	}

	status, detached, err := tui.WatchRun(runID, p.registry.Get)
	if err != nil {
		return fmt.Errorf("watch run: %w", err)
	}
	if detached {
		// The process owns the run, so it cannot outlive us.
		fmt.Println("Stopped watching; waiting for the run to finish...")
		status = waitForRun(ctx, p.registry, runID)
	}

	renderCounts(os.Stdout, tui.Tally(status))
	if status.Status == runs.StatusFailed {
		fmt.Fprintf(os.Stderr, "run %s failed: %s\n", runID, status.Error)
		os.Exit(1)
	}
	return nil
}

// waitForRun polls the registry until the run is terminal or ctx is done.
func waitForRun(ctx context.Context, registry *runs.Registry, runID string) runs.RunStatus {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		st, ok := registry.Get(runID)
		if !ok || st.Terminal() {
			return st
		}
		select {
		case <-ctx.Done():
			return st
		case <-ticker.C:
		}
	}
}
