package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/relevance"
)

// Config is the root configuration for jobscout.
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	Source      SourceConfig
	Preferences model.Preferences
	Schedule    model.ScheduleConfig
	Scheduler   SchedulerConfig
	Runs        RunsConfig
	Retry       RetryConfig
	Scoring     relevance.Policy
	AI          AIConfig
}

type DatabaseConfig struct {
	Path string
}

type ServerConfig struct {
	Addr string
}

// Source types.
const (
	SourceLinkedIn   = "linkedin"
	SourceAdzuna     = "adzuna"
	SourceGreenhouse = "greenhouse"
)

// SourceConfig selects and configures the posting source.
type SourceConfig struct {
	Type       string
	Timeout    time.Duration // per HTTP request
	MinDelay   time.Duration // minimum gap between searches against the source
	MaxPages   int
	Adzuna     AdzunaConfig
	Greenhouse []BoardConfig
}

type AdzunaConfig struct {
	AppID   string `yaml:"app_id"`
	AppKey  string `yaml:"app_key"`
	Country string `yaml:"country"`
}

type BoardConfig struct {
	Token   string `yaml:"token"`
	Company string `yaml:"company"`
}

type SchedulerConfig struct {
	Tick time.Duration
}

// RunsConfig bounds run lifetimes. Deadline must stay below StallTimeout.
type RunsConfig struct {
	Deadline      time.Duration
	StallTimeout  time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// AIConfig controls the optional LLM analyzer.
type AIConfig struct {
	Enabled           bool
	BaseURL           string        // defaults to https://api.openai.com/v1
	Model             string        // e.g. "gpt-4o-mini"
	APIKey            string        // expanded from env var by Load
	Timeout           time.Duration // per-request timeout
	RequestsPerMinute int
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Source      rawSourceConfig   `yaml:"source"`
	Preferences model.Preferences `yaml:"preferences"`
	Schedule    rawScheduleConfig `yaml:"schedule"`
	Scheduler   struct {
		Tick string `yaml:"tick"`
	} `yaml:"scheduler"`
	Runs struct {
		Deadline      string `yaml:"deadline"`
		StallTimeout  string `yaml:"stall_timeout"`
		Retention     string `yaml:"retention"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"runs"`
	Retry struct {
		MaxRetries *int   `yaml:"max_retries"`
		BaseDelay  string `yaml:"base_delay"`
	} `yaml:"retry"`
	Scoring relevance.Policy `yaml:"scoring"`
	AI      rawAIConfig      `yaml:"ai"`
}

type rawSourceConfig struct {
	Type       string        `yaml:"type"`
	Timeout    string        `yaml:"timeout"`
	MinDelay   string        `yaml:"min_delay"`
	MaxPages   int           `yaml:"max_pages"`
	Adzuna     AdzunaConfig  `yaml:"adzuna"`
	Greenhouse []BoardConfig `yaml:"greenhouse"`
}

type rawScheduleConfig struct {
	Type          string `yaml:"type"`
	ExecutionTime string `yaml:"execution_time"`
	IntervalHours int    `yaml:"interval_hours"`
	Enabled       *bool  `yaml:"enabled"`
}

type rawAIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	Timeout           string `yaml:"timeout"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML, filling defaults for anything left out.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	raw := rawConfig{
		Preferences: model.DefaultPreferences(),
		Scoring:     relevance.DefaultPolicy(),
	}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var errs []error
	duration := func(field, value string, def time.Duration) time.Duration {
		if value == "" {
			return def
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s %q: %w", field, value, err))
			return def
		}
		return d
	}

	cfg := &Config{
		Database: DatabaseConfig{Path: orDefault(raw.Database.Path, "jobscout.db")},
		Server:   ServerConfig{Addr: orDefault(raw.Server.Addr, ":8080")},
		Source: SourceConfig{
			Type:       strings.ToLower(orDefault(raw.Source.Type, SourceLinkedIn)),
			Timeout:    duration("source.timeout", raw.Source.Timeout, 30*time.Second),
			MinDelay:   duration("source.min_delay", raw.Source.MinDelay, 2*time.Second),
			MaxPages:   raw.Source.MaxPages,
			Adzuna:     raw.Source.Adzuna,
			Greenhouse: raw.Source.Greenhouse,
		},
		Preferences: raw.Preferences,
		Schedule: model.ScheduleConfig{
			Type:          model.ScheduleType(strings.ToLower(orDefault(raw.Schedule.Type, string(model.ScheduleDaily)))),
			ExecutionTime: raw.Schedule.ExecutionTime,
			IntervalHours: raw.Schedule.IntervalHours,
			Enabled:       raw.Schedule.Enabled == nil || *raw.Schedule.Enabled,
		},
		Scheduler: SchedulerConfig{
			Tick: duration("scheduler.tick", raw.Scheduler.Tick, time.Minute),
		},
		Runs: RunsConfig{
			Deadline:      duration("runs.deadline", raw.Runs.Deadline, 20*time.Minute),
			StallTimeout:  duration("runs.stall_timeout", raw.Runs.StallTimeout, 30*time.Minute),
			Retention:     duration("runs.retention", raw.Runs.Retention, 10*time.Minute),
			SweepInterval: duration("runs.sweep_interval", raw.Runs.SweepInterval, time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  duration("retry.base_delay", raw.Retry.BaseDelay, 5*time.Second),
		},
		Scoring: raw.Scoring,
		AI: AIConfig{
			Enabled:           raw.AI.Enabled,
			BaseURL:           orDefault(raw.AI.BaseURL, defaultOpenAIBaseURL),
			Model:             raw.AI.Model,
			APIKey:            raw.AI.APIKey,
			Timeout:           duration("ai.timeout", raw.AI.Timeout, 30*time.Second),
			RequestsPerMinute: raw.AI.RequestsPerMinute,
		},
	}
	if raw.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *raw.Retry.MaxRetries
	}
	if cfg.Schedule.Type == model.ScheduleDaily && cfg.Schedule.ExecutionTime == "" {
		cfg.Schedule.ExecutionTime = "08:00"
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func validate(cfg *Config) error {
	switch cfg.Source.Type {
	case SourceLinkedIn:
	case SourceAdzuna:
		if cfg.Source.Adzuna.AppID == "" || cfg.Source.Adzuna.AppKey == "" {
			return fmt.Errorf("source.adzuna.app_id and source.adzuna.app_key are required for the adzuna source")
		}
	case SourceGreenhouse:
		if len(cfg.Source.Greenhouse) == 0 {
			return fmt.Errorf("source.greenhouse needs at least one board")
		}
		for i, b := range cfg.Source.Greenhouse {
			if b.Token == "" {
				return fmt.Errorf("source.greenhouse[%d].token is required", i)
			}
		}
	default:
		return fmt.Errorf("source.type must be one of linkedin, adzuna, greenhouse; got %q", cfg.Source.Type)
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive, got %v", cfg.Source.Timeout)
	}

	if err := cfg.Preferences.Validate(); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}

	if cfg.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive, got %v", cfg.Scheduler.Tick)
	}
	if cfg.Runs.Deadline <= 0 || cfg.Runs.Deadline >= cfg.Runs.StallTimeout {
		return fmt.Errorf("runs.deadline must be positive and below runs.stall_timeout (%v), got %v", cfg.Runs.StallTimeout, cfg.Runs.Deadline)
	}
	if cfg.Runs.Retention <= 0 || cfg.Runs.SweepInterval <= 0 {
		return fmt.Errorf("runs.retention and runs.sweep_interval must be positive")
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", cfg.Retry.MaxRetries)
	}

	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
		if cfg.AI.Timeout <= 0 {
			return fmt.Errorf("ai.timeout must be positive, got %v", cfg.AI.Timeout)
		}
	}

	return nil
}
