package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// MemoryStore keeps everything in process memory. It backs dry runs and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	postings map[string]model.JobPosting
	history  map[string][]model.StateTransition
	analyses map[string]model.AnalysisResult
	schedule *model.ScheduleConfig
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		postings: make(map[string]model.JobPosting),
		history:  make(map[string][]model.StateTransition),
		analyses: make(map[string]model.AnalysisResult),
		now:      time.Now,
	}
}

func (s *MemoryStore) Exists(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.postings[externalID]
	return ok, nil
}

// WithinTx stages writes and applies them only if fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx model.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistenceFailure, err)
	}
	tx := &memoryTx{
		store:    s,
		postings: make(map[string]model.JobPosting),
		history:  make(map[string][]model.StateTransition),
		analyses: make(map[string]model.AnalysisResult),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, p := range tx.postings {
		s.postings[id] = p
	}
	for id, h := range tx.history {
		s.history[id] = append(s.history[id], h...)
	}
	for id, a := range tx.analyses {
		s.analyses[id] = a
	}
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	postings map[string]model.JobPosting
	history  map[string][]model.StateTransition
	analyses map[string]model.AnalysisResult
}

func (t *memoryTx) SavePosting(_ context.Context, p model.JobPosting) error {
	_, committed := t.store.postings[p.ExternalID]
	_, staged := t.postings[p.ExternalID]
	if committed || staged {
		return fmt.Errorf("posting %s: %w", p.ExternalID, model.ErrDuplicatePosting)
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = t.store.now()
	}
	t.postings[p.ExternalID] = p
	return nil
}

func (t *memoryTx) AppendStateTransition(_ context.Context, postingID string, state model.JobState, notes string) error {
	var prev time.Time
	if h := t.history[postingID]; len(h) > 0 {
		prev = h[len(h)-1].Timestamp
	} else if h := t.store.history[postingID]; len(h) > 0 {
		prev = h[len(h)-1].Timestamp
	}
	t.history[postingID] = append(t.history[postingID], model.StateTransition{
		State:     state,
		Timestamp: model.NextTransitionTime(prev, t.store.now()),
		Notes:     notes,
	})
	return nil
}

func (t *memoryTx) SaveAnalysis(_ context.Context, r model.AnalysisResult) error {
	t.analyses[r.PostingID] = r
	return nil
}

func (s *MemoryStore) GetSchedule(_ context.Context) (model.ScheduleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return model.ScheduleConfig{}, model.ErrNotFound
	}
	return *s.schedule, nil
}

func (s *MemoryStore) SaveSchedule(_ context.Context, cfg model.ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = &cfg
	return nil
}

func (s *MemoryStore) GetPosting(_ context.Context, externalID string) (model.PostingView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.postings[externalID]; !ok {
		return model.PostingView{}, fmt.Errorf("posting %s: %w", externalID, model.ErrNotFound)
	}
	return s.viewLocked(externalID), nil
}

func (s *MemoryStore) ListPostings(_ context.Context, f model.PostingFilter) ([]model.PostingView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PostingView
	for id := range s.postings {
		v := s.viewLocked(id)
		if f.State != "" && v.State != f.State {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b model.PostingView) int {
		if c := b.DiscoveredAt.Compare(a.DiscoveredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})

	if f.Offset >= len(out) {
		return []model.PostingView{}, nil
	}
	out = out[f.Offset:]
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) StateHistory(_ context.Context, externalID string) ([]model.StateTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[externalID]
	if !ok {
		return nil, fmt.Errorf("posting %s: %w", externalID, model.ErrNotFound)
	}
	return slices.Clone(h), nil
}

func (s *MemoryStore) Stats(_ context.Context) (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := model.Stats{Total: len(s.postings), ByState: make(map[model.JobState]int)}
	companies := map[string]int{}
	locations := map[string]int{}
	for id, p := range s.postings {
		stats.ByState[model.CurrentState(s.history[id])]++
		if p.Company != "" {
			companies[p.Company]++
		}
		if p.Location != "" {
			locations[p.Location]++
		}
	}
	stats.TopCompany = topOf(companies)
	stats.TopLocation = topOf(locations)
	return stats, nil
}

func (s *MemoryStore) viewLocked(id string) model.PostingView {
	h := s.history[id]
	v := model.PostingView{JobPosting: s.postings[id], State: model.CurrentState(h)}
	if len(h) > 0 {
		v.StateAt = h[len(h)-1].Timestamp
	}
	if a, ok := s.analyses[id]; ok {
		v.Analysis = &a
	}
	return v
}

func topOf(counts map[string]int) []model.Count {
	out := make([]model.Count, 0, len(counts))
	for label, n := range counts {
		out = append(out, model.Count{Label: label, Count: n})
	}
	slices.SortFunc(out, func(a, b model.Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
