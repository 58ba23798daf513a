package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/model"
)

var (
	scoreTitle    string
	scoreCompany  string
	scoreLocation string
	scoreDescFile string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single posting against your preferences",
	Long: `Score one posting without scraping or storing anything. The description is
read from --description-file, or from stdin when the file is "-".

  jobscout score --title "Senior Go Engineer" --description-file job.txt`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreTitle, "title", "t", "", "posting title")
	scoreCmd.Flags().StringVar(&scoreCompany, "company", "", "company name")
	scoreCmd.Flags().StringVar(&scoreLocation, "location", "", "posting location")
	scoreCmd.Flags().StringVarP(&scoreDescFile, "description-file", "f", "", `file holding the description, "-" for stdin`)
	_ = scoreCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	var desc []byte
	var err error
	switch scoreDescFile {
	case "":
	case "-":
		desc, err = io.ReadAll(cmd.InOrStdin())
	default:
		desc, err = os.ReadFile(scoreDescFile)
	}
	if err != nil {
		return fmt.Errorf("read description: %w", err)
	}

	posting := model.JobPosting{
		ExternalID:  "adhoc",
		Title:       scoreTitle,
		Company:     scoreCompany,
		Location:    scoreLocation,
		Description: strings.TrimSpace(string(desc)),
		Source:      "cli",
	}

	result, err := buildAnalyzer(cfg, logger).Analyze(context.Background(), posting, cfg.Preferences)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	renderAnalysis(os.Stdout, result, cfg.Preferences.RelevanceThreshold)
	return nil
}
