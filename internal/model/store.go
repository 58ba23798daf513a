package model

import (
	"context"
	"time"
)

// Store is the persistence collaborator used by runs and the scheduler.
type Store interface {
	Exists(ctx context.Context, externalID string) (bool, error)
	// WithinTx runs fn in one transaction; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// GetSchedule returns ErrNotFound when no schedule has been saved.
	GetSchedule(ctx context.Context) (ScheduleConfig, error)
	SaveSchedule(ctx context.Context, cfg ScheduleConfig) error
}

// Tx is the write side of a single persistence transaction.
type Tx interface {
	// SavePosting returns ErrDuplicatePosting when the external ID is taken.
	SavePosting(ctx context.Context, p JobPosting) error
	AppendStateTransition(ctx context.Context, postingID string, state JobState, notes string) error
	SaveAnalysis(ctx context.Context, result AnalysisResult) error
}

// PostingFilter narrows ListPostings. A zero State lists every posting.
type PostingFilter struct {
	State  JobState
	Limit  int
	Offset int
}

// PostingView is a posting with its current state and latest analysis.
type PostingView struct {
	JobPosting
	State    JobState        `json:"state"`
	StateAt  time.Time       `json:"state_at"`
	Analysis *AnalysisResult `json:"analysis,omitempty"`
}

// Count is a labelled tally used in statistics.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarises the stored postings.
type Stats struct {
	Total       int              `json:"total"`
	ByState     map[JobState]int `json:"by_state"`
	TopCompany  []Count          `json:"top_companies"`
	TopLocation []Count          `json:"top_locations"`
}

// PostingReader is the query side used by the API and the CLI.
type PostingReader interface {
	GetPosting(ctx context.Context, externalID string) (PostingView, error)
	ListPostings(ctx context.Context, f PostingFilter) ([]PostingView, error)
	StateHistory(ctx context.Context, externalID string) ([]StateTransition, error)
	Stats(ctx context.Context) (Stats, error)
}
