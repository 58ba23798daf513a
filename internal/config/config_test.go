package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("ADZUNA_KEY", "secret")
	path := writeConfig(t, `
database:
  path: /tmp/jobs.db
source:
  type: adzuna
  timeout: 10s
  max_pages: 3
  adzuna:
    app_id: abc
    app_key: ${ADZUNA_KEY}
    country: gb
preferences:
  job_titles: [Data Engineer]
  locations: [London]
  required_skills: [Go, SQL]
  relevance_threshold: 0.6
schedule:
  type: weekly
  execution_time: Monday 07:30
runs:
  deadline: 5m
  stall_timeout: 10m
retry:
  max_retries: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/jobs.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Source.Type != SourceAdzuna || cfg.Source.Adzuna.AppKey != "secret" || cfg.Source.MaxPages != 3 {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Source.Timeout != 10*time.Second {
		t.Errorf("Source.Timeout = %v, want 10s", cfg.Source.Timeout)
	}
	if len(cfg.Preferences.JobTitles) != 1 || cfg.Preferences.JobTitles[0] != "Data Engineer" {
		t.Errorf("JobTitles = %v", cfg.Preferences.JobTitles)
	}
	if cfg.Preferences.RelevanceThreshold != 0.6 {
		t.Errorf("RelevanceThreshold = %v", cfg.Preferences.RelevanceThreshold)
	}
	if cfg.Preferences.TitleMatchStrictness != model.DefaultTitleMatchStrictness {
		t.Errorf("TitleMatchStrictness = %v, want default", cfg.Preferences.TitleMatchStrictness)
	}
	if cfg.Schedule.Type != model.ScheduleWeekly || !cfg.Schedule.Enabled {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Runs.Deadline != 5*time.Minute || cfg.Runs.StallTimeout != 10*time.Minute {
		t.Errorf("Runs = %+v", cfg.Runs)
	}
	if cfg.Retry.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", cfg.Retry.MaxRetries)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Type != SourceLinkedIn {
		t.Errorf("Source.Type = %q, want linkedin", cfg.Source.Type)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Schedule.Type != model.ScheduleDaily || cfg.Schedule.ExecutionTime != "08:00" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Scheduler.Tick != time.Minute {
		t.Errorf("Tick = %v", cfg.Scheduler.Tick)
	}
	if cfg.Runs.Deadline != 20*time.Minute || cfg.Runs.StallTimeout != 30*time.Minute || cfg.Runs.Retention != 10*time.Minute {
		t.Errorf("Runs = %+v", cfg.Runs)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Retry.MaxRetries)
	}
	if cfg.AI.BaseURL != defaultOpenAIBaseURL || cfg.AI.Timeout != 30*time.Second {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Scoring.RequiredWeight == 0 {
		t.Error("scoring policy defaults not applied")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "source: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown source",
			content: "source:\n  type: monster\n",
			wantErr: "source.type",
		},
		{
			name:    "adzuna without credentials",
			content: "source:\n  type: adzuna\n",
			wantErr: "app_id",
		},
		{
			name:    "greenhouse without boards",
			content: "source:\n  type: greenhouse\n",
			wantErr: "board",
		},
		{
			name:    "bad duration",
			content: "scheduler:\n  tick: soon\n",
			wantErr: "scheduler.tick",
		},
		{
			name:    "deadline beyond stall timeout",
			content: "runs:\n  deadline: 45m\n",
			wantErr: "runs.deadline",
		},
		{
			name:    "invalid schedule",
			content: "schedule:\n  type: daily\n  execution_time: \"8 o'clock\"\n",
			wantErr: "schedule",
		},
		{
			name:    "threshold out of range",
			content: "preferences:\n  relevance_threshold: 1.5\n",
			wantErr: "relevance_threshold",
		},
		{
			name:    "ai without key",
			content: "ai:\n  enabled: true\n  model: gpt-4o-mini\n",
			wantErr: "ai.api_key",
		},
		{
			name:    "bad scoring weights",
			content: "scoring:\n  required_weight: 0\n",
			wantErr: "required_weight",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Source.Greenhouse) != 1 || cfg.Scoring.MissingRequiredCeiling != 0.9 {
		t.Errorf("unexpected example config: %+v", cfg)
	}
}
