package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/model"
)

var (
	jobsState  string
	jobsLimit  int
	jobsOffset int
	markNotes  string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List stored postings",
	Long:  "Print stored postings with their current state and relevance score, newest first.",
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <posting-id>",
	Short: "Show one posting with its analysis and state history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsMarkCmd = &cobra.Command{
	Use:   "mark <posting-id> <viewed|saved|applied|rejected>",
	Short: "Record what you did with a posting",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsMark,
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise stored postings by state, company and location",
	RunE:  runJobsStats,
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsState, "state", "s", "", "only postings currently in this state")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 50, "maximum postings to print")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "postings to skip")
	jobsMarkCmd.Flags().StringVar(&markNotes, "notes", "", "free-text note stored with the transition")

	jobsCmd.AddCommand(jobsShowCmd, jobsMarkCmd, jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	filter := model.PostingFilter{Limit: jobsLimit, Offset: jobsOffset}
	if jobsState != "" {
		st, err := model.ParseJobState(jobsState)
		if err != nil {
			return err
		}
		filter.State = st
	}

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	postings, err := sqlStore.ListPostings(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("list postings: %w", err)
	}
	if len(postings) == 0 {
		fmt.Println("No postings stored yet. Run `jobscout run` first.")
		return nil
	}
	renderPostings(os.Stdout, postings)
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	ctx := context.Background()
	p, err := sqlStore.GetPosting(ctx, args[0])
	if errors.Is(err, model.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "no posting with id %s\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	history, err := sqlStore.StateHistory(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s at %s (%s)\n%s\n\n", p.Title, p.Company, p.Location, p.URL)
	if p.Analysis != nil {
		renderAnalysis(os.Stdout, *p.Analysis, cfg.Preferences.RelevanceThreshold)
	} else {
		fmt.Println("Not analyzed.")
	}
	renderHistory(os.Stdout, history)
	return nil
}

func runJobsMark(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	state, err := model.ParseJobState(args[1])
	if err != nil {
		return err
	}

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	p, err := buildPipeline(cfg, sqlStore, logger)
	if err != nil {
		return err
	}
	if err := p.orch.Transition(context.Background(), args[0], state, markNotes); err != nil {
		fmt.Fprintf(os.Stderr, "could not mark %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Printf("%s marked %s\n", args[0], state)
	return nil
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sqlStore := openStore(cfg, logger)
	defer sqlStore.Close()

	stats, err := sqlStore.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	renderStats(os.Stdout, stats)
	return nil
}
