package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/scheduler"
)

var (
	schedType     string
	schedTime     string
	schedInterval int
	schedEnable   bool
	schedDisable  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the stored schedule",
	Long:  "Show the schedule the daemon runs on, including when it is next due.",
	RunE:  runScheduleShow,
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the stored schedule",
	Long: `Change the schedule the daemon runs on. Examples:

  jobscout schedule set --type daily --time 08:00
  jobscout schedule set --type weekly --time "Monday 07:30"
  jobscout schedule set --type custom_interval --interval 6
  jobscout schedule set --disable`,
	RunE: runScheduleSet,
}

func init() {
	scheduleSetCmd.Flags().StringVar(&schedType, "type", "", "daily, weekly or custom_interval")
	scheduleSetCmd.Flags().StringVar(&schedTime, "time", "", `"HH:MM" for daily, "<Weekday> HH:MM" for weekly`)
	scheduleSetCmd.Flags().IntVar(&schedInterval, "interval", 0, "hours between runs for custom_interval")
	scheduleSetCmd.Flags().BoolVar(&schedEnable, "enable", false, "enable scheduled runs")
	scheduleSetCmd.Flags().BoolVar(&schedDisable, "disable", false, "disable scheduled runs")
	scheduleSetCmd.MarkFlagsMutuallyExclusive("enable", "disable")

	scheduleCmd.AddCommand(scheduleSetCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	schedule, err := scheduler.EnsureSchedule(context.Background(), sqlStore, cfg.Schedule)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	printSchedule(schedule)
	return nil
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	ctx := context.Background()
	schedule, err := scheduler.EnsureSchedule(ctx, sqlStore, cfg.Schedule)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	if schedType != "" {
		t, err := model.ParseScheduleType(schedType)
		if err != nil {
			return err
		}
		if t != schedule.Type {
			// The old execution time is meaningless for another type.
			schedule.ExecutionTime = ""
			schedule.IntervalHours = 0
		}
		schedule.Type = t
	}
	if schedTime != "" {
		schedule.ExecutionTime = schedTime
	}
	if schedInterval > 0 {
		schedule.IntervalHours = schedInterval
		if schedule.Type == model.ScheduleCustomInterval {
			schedule.ExecutionTime = ""
		}
	}
	switch {
	case schedEnable:
		schedule.Enabled = true
	case schedDisable:
		schedule.Enabled = false
	}

	if err := schedule.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid schedule: %v\n", err)
		os.Exit(1)
	}
	if err := sqlStore.SaveSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	fmt.Println("Schedule updated.")
	printSchedule(schedule)
	return nil
}

func printSchedule(schedule model.ScheduleConfig) {
	var next *time.Time
	if due, err := scheduler.NextDue(schedule, time.Now()); err == nil {
		next = &due
	}
	renderSchedule(os.Stdout, schedule, next)
}
