package model

import (
	"context"
	"iter"
	"time"
)

// JobPosting is one listing as returned by a posting source.
type JobPosting struct {
	ExternalID   string    `json:"external_id"` // dedup key, unique per source
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	URL          string    `json:"url"`
	Source       string    `json:"source"`      // source name, e.g. "linkedin"
	SourceTerm   string    `json:"source_term"` // search term that surfaced it
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SearchQuery is one (term, location) pair handed to a PostingSource.
type SearchQuery struct {
	Term     string
	Location string
	// Optional narrowing hints; sources that cannot filter on them ignore them.
	ExperienceLevels string // comma separated, e.g. "Entry level,Mid-Senior level"
	RemoteOK         bool
}

func (q SearchQuery) String() string {
	return q.Term + " @ " + q.Location
}

// PostingSource yields postings for a query. The sequence is lazy and finite.
// It cannot be resumed after an error; calling Fetch again restarts it.
type PostingSource interface {
	Fetch(ctx context.Context, q SearchQuery) iter.Seq2[JobPosting, error]
}

// PostingAnalyzer scores a posting against preferences.
type PostingAnalyzer interface {
	Analyze(ctx context.Context, posting JobPosting, prefs Preferences) (AnalysisResult, error)
}
