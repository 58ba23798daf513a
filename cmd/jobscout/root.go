package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobscout/internal/adapter"
	"github.com/amishk599/jobscout/internal/ai"
	"github.com/amishk599/jobscout/internal/config"
	"github.com/amishk599/jobscout/internal/metrics"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/orchestrator"
	"github.com/amishk599/jobscout/internal/ratelimit"
	"github.com/amishk599/jobscout/internal/relevance"
	"github.com/amishk599/jobscout/internal/retry"
	"github.com/amishk599/jobscout/internal/runs"
	"github.com/amishk599/jobscout/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobscout",
	Short: "Job scout: scrape, score and track postings",
	Long:  "jobscout searches job boards on a schedule, scores each posting against your preferences and keeps track of what you did with it.",
	// Secrets such as ai.api_key are usually referenced as ${VAR} in the
	// config file, so .env must be loaded before the config is read.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
	// Default to `start` so that `jobscout` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSCOUT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSCOUT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBSCOUT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// mustLoad loads config and exits on failure, the way every subcommand starts.
func mustLoad(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// buildSource creates the configured posting source, rate limited per source
// and retried on transient failures.
func buildSource(cfg *config.Config, logger *slog.Logger) (model.PostingSource, error) {
	httpClient := &http.Client{Timeout: cfg.Source.Timeout}

	var src model.PostingSource
	switch cfg.Source.Type {
	case config.SourceLinkedIn:
		src = adapter.NewLinkedInSource(httpClient, cfg.Source.MaxPages)
	case config.SourceAdzuna:
		a := cfg.Source.Adzuna
		src = adapter.NewAdzunaSource(a.AppID, a.AppKey, a.Country, cfg.Source.MaxPages, httpClient)
	case config.SourceGreenhouse:
		boards := make([]adapter.Board, 0, len(cfg.Source.Greenhouse))
		for _, b := range cfg.Source.Greenhouse {
			boards = append(boards, adapter.Board{Token: b.Token, Company: b.Company})
		}
		src = adapter.NewGreenhouseSource(boards, httpClient)
	default:
		return nil, fmt.Errorf("unsupported source %q", cfg.Source.Type)
	}

	limiter := ratelimit.NewSourceRateLimiter(cfg.Source.MinDelay)
	src = ratelimit.NewRateLimitedSource(src, limiter, cfg.Source.Type)
	src = retry.NewRetrySource(src, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)

	logger.Debug("source configured", "type", cfg.Source.Type, "min_delay", cfg.Source.MinDelay.String(), "max_pages", cfg.Source.MaxPages)
	return src, nil
}

// buildAnalyzer returns the keyword scorer, or the LLM analyzer when ai is
// enabled. Both share the same scoring policy.
func buildAnalyzer(cfg *config.Config, logger *slog.Logger) model.PostingAnalyzer {
	scorer := relevance.NewScorer(cfg.Scoring)
	if !cfg.AI.Enabled {
		return relevance.NewAnalyzer(scorer)
	}

	provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, &http.Client{}).
		WithRateLimit(cfg.AI.RequestsPerMinute)
	analyzer := ai.NewLLMAnalyzer(provider, ai.RelevanceTemplate, scorer, logger)
	logger.Info("AI analysis enabled", "model", cfg.AI.Model, "requests_per_minute", cfg.AI.RequestsPerMinute)
	return retry.NewRetryAnalyzer(analyzer, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, cfg.AI.Timeout, logger)
}

// pipeline is the assembled run machinery shared by the subcommands.
type pipeline struct {
	store    orchestrator.Store
	registry *runs.Registry
	metrics  *metrics.Metrics
	orch     *orchestrator.Orchestrator
}

func buildPipeline(cfg *config.Config, st orchestrator.Store, logger *slog.Logger) (*pipeline, error) {
	src, err := buildSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := runs.NewRegistry(runs.Options{
		StallTimeout: cfg.Runs.StallTimeout,
		Retention:    cfg.Runs.Retention,
	}, logger)
	m := metrics.New()
	orch := orchestrator.New(src, buildAnalyzer(cfg, logger), st, registry, orchestrator.Options{
		Deadline: cfg.Runs.Deadline,
		Recorder: m,
	}, logger)
	return &pipeline{store: st, registry: registry, metrics: m, orch: orch}, nil
}

// openStore opens the SQLite database named in the config.
func openStore(cfg *config.Config, logger *slog.Logger) *store.SQLiteStore {
	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	return sqlStore
}
