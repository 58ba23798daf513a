package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobscout/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		external_id   TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		company       TEXT NOT NULL DEFAULT '',
		location      TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT '',
		source_term   TEXT NOT NULL DEFAULT '',
		discovered_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS job_states (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		posting_id TEXT NOT NULL REFERENCES postings(external_id),
		state      TEXT NOT NULL,
		ts         INTEGER NOT NULL,
		notes      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_states_posting ON job_states(posting_id, ts, id)`,
	`CREATE TABLE IF NOT EXISTS job_analysis (
		posting_id        TEXT PRIMARY KEY REFERENCES postings(external_id),
		relevance_score   REAL NOT NULL,
		matched_required  TEXT NOT NULL,
		matched_preferred TEXT NOT NULL,
		missing_required  TEXT NOT NULL,
		title_match       INTEGER NOT NULL,
		matched_pattern   TEXT NOT NULL DEFAULT '',
		reasoning         TEXT NOT NULL DEFAULT '',
		analyzer          TEXT NOT NULL DEFAULT '',
		analyzed_at       INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_settings (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		type           TEXT NOT NULL,
		execution_time TEXT NOT NULL,
		interval_hours INTEGER NOT NULL DEFAULT 0,
		enabled        INTEGER NOT NULL,
		last_run_at    INTEGER
	)`,
}

// SQLiteStore persists postings, their state history, analyses and the
// schedule in a SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions serial.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Exists returns true if a posting with the external ID is stored.
func (s *SQLiteStore) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists int
	err := s.db.QueryRowxContext(ctx, "SELECT 1 FROM postings WHERE external_id = ?", externalID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking posting %s: %w", externalID, err)
	}
	return true, nil
}

// WithinTx runs fn in a transaction. Errors from fn roll back every write it
// made and are returned wrapped in model.ErrPersistenceFailure unless they
// already carry a more specific sentinel.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx model.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", model.ErrPersistenceFailure, err)
	}

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		if errors.Is(err, model.ErrDuplicatePosting) || errors.Is(err, model.ErrPersistenceFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", model.ErrPersistenceFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", model.ErrPersistenceFailure, err)
	}
	return nil
}

type sqliteTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *sqliteTx) SavePosting(ctx context.Context, p model.JobPosting) error {
	discovered := p.DiscoveredAt
	if discovered.IsZero() {
		discovered = t.now()
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO postings
		(external_id, title, company, location, description, url, source, source_term, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		p.ExternalID, p.Title, p.Company, p.Location, p.Description, p.URL, p.Source, p.SourceTerm, discovered.UnixNano())
	if err != nil {
		return fmt.Errorf("saving posting %s: %w", p.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving posting %s: %w", p.ExternalID, err)
	}
	if n == 0 {
		return fmt.Errorf("posting %s: %w", p.ExternalID, model.ErrDuplicatePosting)
	}
	return nil
}

func (t *sqliteTx) AppendStateTransition(ctx context.Context, postingID string, state model.JobState, notes string) error {
	var prev int64
	if err := t.tx.GetContext(ctx, &prev, "SELECT COALESCE(MAX(ts), 0) FROM job_states WHERE posting_id = ?", postingID); err != nil {
		return fmt.Errorf("reading last state of %s: %w", postingID, err)
	}
	ts := model.NextTransitionTime(time.Unix(0, prev), t.now())

	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO job_states (posting_id, state, ts, notes) VALUES (?, ?, ?, ?)",
		postingID, string(state), ts.UnixNano(), notes); err != nil {
		return fmt.Errorf("appending state %s to %s: %w", state, postingID, err)
	}
	return nil
}

func (t *sqliteTx) SaveAnalysis(ctx context.Context, r model.AnalysisResult) error {
	row, err := toAnalysisRow(r)
	if err != nil {
		return err
	}
	_, err = t.tx.NamedExecContext(ctx, `INSERT INTO job_analysis
		(posting_id, relevance_score, matched_required, matched_preferred, missing_required,
		 title_match, matched_pattern, reasoning, analyzer, analyzed_at)
		VALUES (:posting_id, :relevance_score, :matched_required, :matched_preferred, :missing_required,
		 :title_match, :matched_pattern, :reasoning, :analyzer, :analyzed_at)
		ON CONFLICT(posting_id) DO UPDATE SET
			relevance_score = excluded.relevance_score,
			matched_required = excluded.matched_required,
			matched_preferred = excluded.matched_preferred,
			missing_required = excluded.missing_required,
			title_match = excluded.title_match,
			matched_pattern = excluded.matched_pattern,
			reasoning = excluded.reasoning,
			analyzer = excluded.analyzer,
			analyzed_at = excluded.analyzed_at`, row)
	if err != nil {
		return fmt.Errorf("saving analysis for %s: %w", r.PostingID, err)
	}
	return nil
}

type scheduleRow struct {
	Type          string        `db:"type"`
	ExecutionTime string        `db:"execution_time"`
	IntervalHours int           `db:"interval_hours"`
	Enabled       bool          `db:"enabled"`
	LastRunAt     sql.NullInt64 `db:"last_run_at"`
}

// GetSchedule returns the saved schedule or model.ErrNotFound.
func (s *SQLiteStore) GetSchedule(ctx context.Context) (model.ScheduleConfig, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row,
		"SELECT type, execution_time, interval_hours, enabled, last_run_at FROM schedule_settings WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleConfig{}, model.ErrNotFound
	}
	if err != nil {
		return model.ScheduleConfig{}, fmt.Errorf("reading schedule: %w", err)
	}

	cfg := model.ScheduleConfig{
		Type:          model.ScheduleType(row.Type),
		ExecutionTime: row.ExecutionTime,
		IntervalHours: row.IntervalHours,
		Enabled:       row.Enabled,
	}
	if row.LastRunAt.Valid {
		t := time.Unix(0, row.LastRunAt.Int64)
		cfg.LastRunAt = &t
	}
	return cfg, nil
}

// SaveSchedule replaces the single schedule row.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, cfg model.ScheduleConfig) error {
	var last sql.NullInt64
	if cfg.LastRunAt != nil {
		last = sql.NullInt64{Int64: cfg.LastRunAt.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO schedule_settings (id, type, execution_time, interval_hours, enabled, last_run_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			execution_time = excluded.execution_time,
			interval_hours = excluded.interval_hours,
			enabled = excluded.enabled,
			last_run_at = excluded.last_run_at`,
		string(cfg.Type), cfg.ExecutionTime, cfg.IntervalHours, cfg.Enabled, last)
	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

type analysisRow struct {
	PostingID        string  `db:"posting_id"`
	RelevanceScore   float64 `db:"relevance_score"`
	MatchedRequired  string  `db:"matched_required"`
	MatchedPreferred string  `db:"matched_preferred"`
	MissingRequired  string  `db:"missing_required"`
	TitleMatch       bool    `db:"title_match"`
	MatchedPattern   string  `db:"matched_pattern"`
	Reasoning        string  `db:"reasoning"`
	Analyzer         string  `db:"analyzer"`
	AnalyzedAt       int64   `db:"analyzed_at"`
}

func toAnalysisRow(r model.AnalysisResult) (analysisRow, error) {
	lists := make([]string, 3)
	for i, l := range [][]string{r.MatchedRequiredSkills, r.MatchedPreferredSkills, r.MissingRequiredSkills} {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return analysisRow{}, fmt.Errorf("encoding skills: %w", err)
		}
		lists[i] = string(b)
	}
	return analysisRow{
		PostingID:        r.PostingID,
		RelevanceScore:   r.RelevanceScore,
		MatchedRequired:  lists[0],
		MatchedPreferred: lists[1],
		MissingRequired:  lists[2],
		TitleMatch:       r.TitleMatch,
		MatchedPattern:   r.MatchedPattern,
		Reasoning:        r.Reasoning,
		Analyzer:         r.Analyzer,
		AnalyzedAt:       r.AnalyzedAt.UnixNano(),
	}, nil
}

func (row analysisRow) result() (model.AnalysisResult, error) {
	r := model.AnalysisResult{
		PostingID:      row.PostingID,
		RelevanceScore: row.RelevanceScore,
		TitleMatch:     row.TitleMatch,
		MatchedPattern: row.MatchedPattern,
		Reasoning:      row.Reasoning,
		Analyzer:       row.Analyzer,
		AnalyzedAt:     time.Unix(0, row.AnalyzedAt),
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{row.MatchedRequired, &r.MatchedRequiredSkills},
		{row.MatchedPreferred, &r.MatchedPreferredSkills},
		{row.MissingRequired, &r.MissingRequiredSkills},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return model.AnalysisResult{}, fmt.Errorf("decoding skills for %s: %w", row.PostingID, err)
		}
	}
	return r, nil
}
