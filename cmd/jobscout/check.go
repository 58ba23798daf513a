package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
	"github.com/amishk599/jobscout/internal/store"
)

var checkAll bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run once, print matches, exit",
	Long:  "One-shot dry run: scrapes and scores with the configured preferences and prints the relevant postings. Nothing is written to the database.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "print every posting found, not just relevant ones")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	logger.Info("check mode: results are kept in memory only")

	mem := store.NewMemoryStore()
	p, err := buildPipeline(cfg, mem, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := p.orch.Run(ctx, cfg.Preferences, runs.TriggerManual)
	if runErr != nil {
		logger.Error("check run failed", "error", runErr)
	}

	filter := model.PostingFilter{State: model.StateRelevant}
	if checkAll {
		filter = model.PostingFilter{}
	}
	postings, err := mem.ListPostings(ctx, filter)
	if err != nil {
		return err
	}
	renderPostings(os.Stdout, postings)
	renderCounts(os.Stdout, summary.Counts)

	logger.Info("check complete")
	if runErr != nil {
		os.Exit(1)
	}
	return nil
}
