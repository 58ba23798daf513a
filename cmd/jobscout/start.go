package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/api"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler and HTTP API",
	Long:  "Start the scheduler daemon and the HTTP API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	logger.Info("config loaded",
		"source", cfg.Source.Type,
		"job_titles", len(cfg.Preferences.JobTitles),
		"locations", len(cfg.Preferences.Locations),
		"threshold", cfg.Preferences.RelevanceThreshold,
		"ai", cfg.AI.Enabled,
		"addr", cfg.Server.Addr,
	)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	p, err := buildPipeline(cfg, sqlStore, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedule, err := scheduler.EnsureSchedule(ctx, sqlStore, cfg.Schedule)
	if err != nil {
		logger.Error("failed to load schedule", "error", err)
		os.Exit(1)
	}
	logger.Info("schedule loaded", "type", schedule.Type, "execution_time", schedule.ExecutionTime, "enabled", schedule.Enabled)

	prefs := func() model.Preferences { return cfg.Preferences }

	go p.registry.Run(ctx, cfg.Runs.SweepInterval)

	sched := scheduler.NewScheduler(p.orch, sqlStore, prefs, cfg.Scheduler.Tick, logger)
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	srv := api.NewServer(p.orch, p.registry, sqlStore, prefs, p.metrics.Handler(), logger)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("api server error", "error", err)
		stop()
		<-schedDone
		os.Exit(1)
	}

	if err := <-schedDone; err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
