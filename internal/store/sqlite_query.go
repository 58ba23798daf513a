package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/amishk599/jobscout/internal/model"
)

const defaultListLimit = 50

type postingRow struct {
	ExternalID   string `db:"external_id"`
	Title        string `db:"title"`
	Company      string `db:"company"`
	Location     string `db:"location"`
	Description  string `db:"description"`
	URL          string `db:"url"`
	Source       string `db:"source"`
	SourceTerm   string `db:"source_term"`
	DiscoveredAt int64  `db:"discovered_at"`
	State        string `db:"state"`
	StateAt      int64  `db:"state_at"`
}

func (r postingRow) view() model.PostingView {
	return model.PostingView{
		JobPosting: model.JobPosting{
			ExternalID:   r.ExternalID,
			Title:        r.Title,
			Company:      r.Company,
			Location:     r.Location,
			Description:  r.Description,
			URL:          r.URL,
			Source:       r.Source,
			SourceTerm:   r.SourceTerm,
			DiscoveredAt: time.Unix(0, r.DiscoveredAt),
		},
		State:   model.JobState(r.State),
		StateAt: time.Unix(0, r.StateAt),
	}
}

// currentStateSelect joins each posting with its latest state transition.
const currentStateSelect = `
	SELECT p.external_id, p.title, p.company, p.location, p.description, p.url,
	       p.source, p.source_term, p.discovered_at, s.state, s.ts AS state_at
	FROM postings p
	JOIN job_states s ON s.id = (
		SELECT id FROM job_states
		WHERE posting_id = p.external_id
		ORDER BY ts DESC, id DESC
		LIMIT 1
	)`

// GetPosting returns a posting with its current state and analysis.
func (s *SQLiteStore) GetPosting(ctx context.Context, externalID string) (model.PostingView, error) {
	var row postingRow
	err := s.db.GetContext(ctx, &row, currentStateSelect+" WHERE p.external_id = ?", externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PostingView{}, fmt.Errorf("posting %s: %w", externalID, model.ErrNotFound)
	}
	if err != nil {
		return model.PostingView{}, fmt.Errorf("reading posting %s: %w", externalID, err)
	}

	views := []model.PostingView{row.view()}
	if err := s.attachAnalyses(ctx, views); err != nil {
		return model.PostingView{}, err
	}
	return views[0], nil
}

// ListPostings returns postings newest first, optionally filtered by their
// current state.
func (s *SQLiteStore) ListPostings(ctx context.Context, f model.PostingFilter) ([]model.PostingView, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := currentStateSelect
	args := []any{}
	if f.State != "" {
		query += " WHERE s.state = ?"
		args = append(args, string(f.State))
	}
	query += " ORDER BY p.discovered_at DESC, p.external_id LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var rows []postingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing postings: %w", err)
	}

	views := make([]model.PostingView, len(rows))
	for i, r := range rows {
		views[i] = r.view()
	}
	if err := s.attachAnalyses(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *SQLiteStore) attachAnalyses(ctx context.Context, views []model.PostingView) error {
	if len(views) == 0 {
		return nil
	}
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ExternalID
	}

	query, args, err := sqlx.In("SELECT * FROM job_analysis WHERE posting_id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building analysis query: %w", err)
	}
	var rows []analysisRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("reading analyses: %w", err)
	}

	byID := make(map[string]model.AnalysisResult, len(rows))
	for _, row := range rows {
		r, err := row.result()
		if err != nil {
			return err
		}
		byID[row.PostingID] = r
	}
	for i := range views {
		if r, ok := byID[views[i].ExternalID]; ok {
			views[i].Analysis = &r
		}
	}
	return nil
}

// StateHistory returns a posting's transitions oldest first.
func (s *SQLiteStore) StateHistory(ctx context.Context, externalID string) ([]model.StateTransition, error) {
	var rows []struct {
		State string `db:"state"`
		TS    int64  `db:"ts"`
		Notes string `db:"notes"`
	}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT state, ts, notes FROM job_states WHERE posting_id = ? ORDER BY ts, id", externalID)
	if err != nil {
		return nil, fmt.Errorf("reading state history of %s: %w", externalID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("posting %s: %w", externalID, model.ErrNotFound)
	}

	out := make([]model.StateTransition, len(rows))
	for i, r := range rows {
		out[i] = model.StateTransition{State: model.JobState(r.State), Timestamp: time.Unix(0, r.TS), Notes: r.Notes}
	}
	return out, nil
}

const topN = 5

// Stats counts postings overall, by current state, and the most common
// companies and locations.
func (s *SQLiteStore) Stats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{ByState: make(map[model.JobState]int)}

	if err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM postings"); err != nil {
		return model.Stats{}, fmt.Errorf("counting postings: %w", err)
	}

	var byState []struct {
		State string `db:"state"`
		N     int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &byState,
		"SELECT state, COUNT(*) AS n FROM ("+currentStateSelect+") GROUP BY state")
	if err != nil {
		return model.Stats{}, fmt.Errorf("counting states: %w", err)
	}
	for _, r := range byState {
		stats.ByState[model.JobState(r.State)] = r.N
	}

	if stats.TopCompany, err = s.topCounts(ctx, "company"); err != nil {
		return model.Stats{}, err
	}
	if stats.TopLocation, err = s.topCounts(ctx, "location"); err != nil {
		return model.Stats{}, err
	}
	return stats, nil
}

// topCounts groups postings by column, which must be a trusted column name.
func (s *SQLiteStore) topCounts(ctx context.Context, column string) ([]model.Count, error) {
	var rows []struct {
		Label string `db:"label"`
		N     int    `db:"n"`
	}
	query := fmt.Sprintf(`SELECT %[1]s AS label, COUNT(*) AS n FROM postings
		WHERE %[1]s != '' GROUP BY %[1]s ORDER BY n DESC, label LIMIT ?`, column)
	if err := s.db.SelectContext(ctx, &rows, query, topN); err != nil {
		return nil, fmt.Errorf("counting by %s: %w", column, err)
	}
	out := make([]model.Count, len(rows))
	for i, r := range rows {
		out[i] = model.Count{Label: r.Label, Count: r.N}
	}
	return out, nil
}
