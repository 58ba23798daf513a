package orchestrator

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
	"github.com/amishk599/jobscout/internal/store"
)

// --- Fakes ---

// fakeSource yields canned results per search location. An error entry ends
// the sequence the way a real source does.
type fakeSource struct {
	byLocation map[string][]result
}

type result struct {
	posting model.JobPosting
	err     error
}

func (s *fakeSource) Fetch(_ context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		for _, r := range s.byLocation[q.Location] {
			if r.err != nil {
				yield(model.JobPosting{}, r.err)
				return
			}
			if !yield(r.posting, nil) {
				return
			}
		}
	}
}

// blockingSource holds the run open until release is closed.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSource) Fetch(ctx context.Context, _ model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		s.once.Do(func() { close(s.started) })
		select {
		case <-s.release:
		case <-ctx.Done():
			yield(model.JobPosting{}, ctx.Err())
		}
	}
}

// scoreAnalyzer returns a fixed score per posting id, or an error.
type scoreAnalyzer struct {
	scores map[string]float64
	fail   map[string]error
}

func (a *scoreAnalyzer) Analyze(_ context.Context, p model.JobPosting, _ model.Preferences) (model.AnalysisResult, error) {
	if err := a.fail[p.ExternalID]; err != nil {
		return model.AnalysisResult{}, err
	}
	return model.AnalysisResult{
		PostingID:      p.ExternalID,
		RelevanceScore: a.scores[p.ExternalID],
		Reasoning:      "fixed",
		Analyzer:       "fake",
	}, nil
}

// flakyStore fails every transaction that saves one posting.
type flakyStore struct {
	*store.MemoryStore
	failID string
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(tx model.Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(tx model.Tx) error {
		return fn(&flakyTx{Tx: tx, failID: s.failID})
	})
}

type flakyTx struct {
	model.Tx
	failID string
}

func (t *flakyTx) SaveAnalysis(ctx context.Context, r model.AnalysisResult) error {
	if r.PostingID == t.failID {
		return model.ErrPersistenceFailure
	}
	return t.Tx.SaveAnalysis(ctx, r)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func posting(id string) result {
	return result{posting: model.JobPosting{ExternalID: id, Title: "ML Engineer " + id, Company: "Acme", Source: "fake"}}
}

func testPrefs(locations ...string) model.Preferences {
	p := model.DefaultPreferences()
	p.JobTitles = []string{"ML Engineer"}
	p.Locations = locations
	p.RelevanceThreshold = 0.5
	return p
}

type recorder struct {
	mu       sync.Mutex
	statuses []runs.Status
	counts   []runs.Counts
}

func (r *recorder) RunFinished(_ runs.Trigger, status runs.Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) PostingsProcessed(c runs.Counts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, c)
}

func newOrchestrator(src model.PostingSource, an model.PostingAnalyzer, st Store) (*Orchestrator, *runs.Registry, *recorder) {
	reg := runs.NewRegistry(runs.Options{}, discardLogger())
	rec := &recorder{}
	return New(src, an, st, reg, Options{Recorder: rec}, discardLogger()), reg, rec
}

func currentState(t *testing.T, st *store.MemoryStore, id string) model.JobState {
	t.Helper()
	view, err := st.GetPosting(context.Background(), id)
	require.NoError(t, err)
	return view.State
}

// --- Tests ---

func TestRun_PersistsAndClassifies(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{
		"Remote": {posting("a"), posting("b"), posting("c")},
	}}
	an := &scoreAnalyzer{scores: map[string]float64{"a": 0.9, "b": 0.2, "c": 0.5}}
	st := store.NewMemoryStore()
	o, reg, rec := newOrchestrator(src, an, st)

	summary, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 3, summary.Analyzed)
	assert.Equal(t, 2, summary.Relevant)
	assert.Equal(t, 3, summary.Persisted)
	assert.Equal(t, model.StateRelevant, currentState(t, st, "a"))
	assert.Equal(t, model.StateIrrelevant, currentState(t, st, "b"))
	assert.Equal(t, model.StateRelevant, currentState(t, st, "c"), "score equal to threshold is relevant")

	history, err := st.StateHistory(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.StateNew, history[0].State)

	status, ok := reg.Get(summary.RunID)
	require.True(t, ok)
	assert.Equal(t, runs.StatusCompleted, status.Status)
	events := status.Events()
	last := events[len(events)-1]
	require.Equal(t, runs.EventComplete, last.Kind())
	assert.Equal(t, summary.Counts, last.Data.(runs.Complete).Counts)

	assert.Equal(t, []runs.Status{runs.StatusCompleted}, rec.statuses)
}

func TestRun_EmitsJobFoundBeforeAnalyzed(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{"Remote": {posting("a")}}}
	o, reg, _ := newOrchestrator(src, &scoreAnalyzer{scores: map[string]float64{"a": 1}}, store.NewMemoryStore())

	summary, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerScheduled)
	require.NoError(t, err)

	status, _ := reg.Get(summary.RunID)
	var kinds []runs.EventKind
	for _, ev := range status.Events() {
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []runs.EventKind{runs.EventJobFound, runs.EventAnalyzed, runs.EventComplete}, kinds)
	assert.Equal(t, runs.TriggerScheduled, status.Trigger)
}

func TestRun_Dedupes(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.WithinTx(context.Background(), func(tx model.Tx) error {
		return tx.SavePosting(context.Background(), model.JobPosting{ExternalID: "a"})
	}))

	src := &fakeSource{byLocation: map[string][]result{
		"NYC": {posting("a"), posting("b")},
		"SF":  {posting("b"), posting("c")},
	}}
	an := &scoreAnalyzer{scores: map[string]float64{"b": 0.9, "c": 0.9}}
	o, _, _ := newOrchestrator(src, an, st)

	summary, err := o.Run(context.Background(), testPrefs("NYC", "SF"), runs.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Found)
	assert.Equal(t, 2, summary.SkippedDuplicate)
	assert.Equal(t, 2, summary.Analyzed, "duplicates are never analyzed")
	assert.Equal(t, 2, summary.Persisted)
}

func TestRun_SecondRunSkipsEverythingPersisted(t *testing.T) {
	st := store.NewMemoryStore()
	src := &fakeSource{byLocation: map[string][]result{
		"NYC": {posting("a"), posting("b"), posting("c")},
	}}
	an := &scoreAnalyzer{scores: map[string]float64{"a": 0.9, "b": 0.1, "c": 0.6}}
	o, _, _ := newOrchestrator(src, an, st)

	first, err := o.Run(context.Background(), testPrefs("NYC"), runs.TriggerManual)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), testPrefs("NYC"), runs.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, 3, first.Persisted)
	assert.Equal(t, first.Persisted, second.SkippedDuplicate)
	assert.Zero(t, second.Persisted)

	all, err := st.ListPostings(context.Background(), model.PostingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRun_AnalysisFailureIsRecorded(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{"Remote": {posting("a"), posting("b")}}}
	an := &scoreAnalyzer{
		scores: map[string]float64{"b": 0.9},
		fail:   map[string]error{"a": model.ErrMalformedResponse},
	}
	st := store.NewMemoryStore()
	o, reg, _ := newOrchestrator(src, an, st)

	summary, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Analyzed)
	assert.Equal(t, 1, summary.AnalysisFailed)
	assert.Equal(t, 2, summary.Persisted)

	view, err := st.GetPosting(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, model.StateNew, view.State)
	assert.Nil(t, view.Analysis)

	status, _ := reg.Get(summary.RunID)
	var failed *runs.Analyzed
	for _, ev := range status.Events() {
		if a, ok := ev.Data.(runs.Analyzed); ok && a.ExternalID == "a" {
			failed = &a
		}
	}
	require.NotNil(t, failed)
	assert.Nil(t, failed.Score)
	assert.NotEmpty(t, failed.Error)
}

func TestRun_PersistFailureDoesNotAbort(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{"Remote": {posting("a"), posting("b")}}}
	an := &scoreAnalyzer{scores: map[string]float64{"a": 0.9, "b": 0.9}}
	mem := store.NewMemoryStore()
	o, reg, _ := newOrchestrator(src, an, &flakyStore{MemoryStore: mem, failID: "a"})

	summary, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PersistFailed)
	assert.Equal(t, 1, summary.Persisted)

	exists, err := mem.Exists(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, exists, "failed transaction must roll back the posting")

	status, _ := reg.Get(summary.RunID)
	assert.Equal(t, runs.StatusCompleted, status.Status)
	kinds := map[runs.EventKind]int{}
	for _, ev := range status.Events() {
		kinds[ev.Kind()]++
	}
	assert.Equal(t, 1, kinds[runs.EventPersistFailed])
}

func TestRun_PartialScrapeFailureContinues(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{
		"NYC": {{err: model.ErrSourceUnavailable}},
		"SF":  {posting("a")},
	}}
	o, reg, _ := newOrchestrator(src, &scoreAnalyzer{scores: map[string]float64{"a": 0.9}}, store.NewMemoryStore())

	summary, err := o.Run(context.Background(), testPrefs("NYC", "SF"), runs.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ScrapeErrors)
	assert.Equal(t, 1, summary.Persisted)

	status, _ := reg.Get(summary.RunID)
	assert.Equal(t, runs.StatusCompleted, status.Status)
}

func TestRun_AllQueriesFailFailsRun(t *testing.T) {
	src := &fakeSource{byLocation: map[string][]result{
		"NYC": {{err: model.ErrSourceUnavailable}},
		"SF":  {{err: model.ErrRateLimited}},
	}}
	st := store.NewMemoryStore()
	o, reg, rec := newOrchestrator(src, &scoreAnalyzer{}, st)

	summary, err := o.Run(context.Background(), testPrefs("NYC", "SF"), runs.TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
	assert.ErrorIs(t, err, model.ErrRateLimited)

	status, ok := reg.Get(summary.RunID)
	require.True(t, ok)
	assert.Equal(t, runs.StatusFailed, status.Status)
	assert.NotEmpty(t, status.Error)
	assert.Equal(t, []runs.Status{runs.StatusFailed}, rec.statuses)
}

func TestRun_InvalidPreferences(t *testing.T) {
	o, reg, _ := newOrchestrator(&fakeSource{}, &scoreAnalyzer{}, store.NewMemoryStore())

	summary, err := o.Run(context.Background(), testPrefs(), runs.TriggerManual)
	assert.ErrorIs(t, err, model.ErrInvalidPreferences)

	status, _ := reg.Get(summary.RunID)
	assert.Equal(t, runs.StatusFailed, status.Status)
}

func TestStart_SingleRunLock(t *testing.T) {
	src := newBlockingSource()
	o, reg, _ := newOrchestrator(src, &scoreAnalyzer{}, store.NewMemoryStore())
	prefs := testPrefs("Remote")

	runID, err := o.Start(context.Background(), prefs, runs.TriggerManual)
	require.NoError(t, err)
	<-src.started

	_, err = o.Start(context.Background(), prefs, runs.TriggerManual)
	assert.ErrorIs(t, err, model.ErrAlreadyRunning)
	_, err = o.Run(context.Background(), prefs, runs.TriggerScheduled)
	assert.ErrorIs(t, err, model.ErrAlreadyRunning)

	active, ok := reg.Active()
	require.True(t, ok)
	assert.Equal(t, runID, active)

	close(src.release)
	require.Eventually(t, func() bool {
		s, ok := reg.Get(runID)
		return ok && s.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	// The lock is released after MarkDone, so allow the goroutine to exit.
	require.Eventually(t, func() bool {
		_, err := o.Start(context.Background(), prefs, runs.TriggerManual)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_DetachedFromCallerCancellation(t *testing.T) {
	src := newBlockingSource()
	o, reg, _ := newOrchestrator(src, &scoreAnalyzer{}, store.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	runID, err := o.Start(ctx, testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)
	<-src.started
	cancel()

	time.Sleep(20 * time.Millisecond)
	status, _ := reg.Get(runID)
	assert.Equal(t, runs.StatusRunning, status.Status)

	close(src.release)
	require.Eventually(t, func() bool {
		s, _ := reg.Get(runID)
		return s.Status == runs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRun_DeadlineFailsRunButKeepsCommitted(t *testing.T) {
	src := &slowSource{postings: []model.JobPosting{{ExternalID: "a"}, {ExternalID: "b"}}, gap: 200 * time.Millisecond}
	st := store.NewMemoryStore()
	reg := runs.NewRegistry(runs.Options{}, discardLogger())
	o := New(src, &scoreAnalyzer{scores: map[string]float64{"a": 1, "b": 1}}, st, reg, Options{Deadline: 100 * time.Millisecond}, discardLogger())

	summary, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	exists, _ := st.Exists(context.Background(), "a")
	assert.True(t, exists)
	status, _ := reg.Get(summary.RunID)
	assert.Equal(t, runs.StatusFailed, status.Status)
}

// slowSource yields postings with a pause between them.
type slowSource struct {
	postings []model.JobPosting
	gap      time.Duration
}

func (s *slowSource) Fetch(ctx context.Context, _ model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		for i, p := range s.postings {
			if i > 0 {
				select {
				case <-ctx.Done():
					yield(model.JobPosting{}, ctx.Err())
					return
				case <-time.After(s.gap):
				}
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestReanalyze(t *testing.T) {
	st := store.NewMemoryStore()
	an := &scoreAnalyzer{scores: map[string]float64{"a": 0.2, "b": 0.2}}
	src := &fakeSource{byLocation: map[string][]result{"Remote": {posting("a"), posting("b")}}}
	o, _, _ := newOrchestrator(src, an, st)
	_, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, o.Transition(context.Background(), "b", model.StateApplied, "sent CV"))

	an.scores = map[string]float64{"a": 0.9, "b": 0.9}
	got, err := o.Reanalyze(context.Background(), "a", testPrefs("Remote"))
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.RelevanceScore)
	assert.Equal(t, model.StateRelevant, currentState(t, st, "a"))

	view, err := st.GetPosting(context.Background(), "a")
	require.NoError(t, err)
	require.NotNil(t, view.Analysis)
	assert.Equal(t, 0.9, view.Analysis.RelevanceScore)

	_, err = o.Reanalyze(context.Background(), "b", testPrefs("Remote"))
	require.NoError(t, err)
	assert.Equal(t, model.StateApplied, currentState(t, st, "b"), "manual state survives re-analysis")

	_, err = o.Reanalyze(context.Background(), "missing", testPrefs("Remote"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTransition(t *testing.T) {
	st := store.NewMemoryStore()
	src := &fakeSource{byLocation: map[string][]result{"Remote": {posting("a")}}}
	o, _, _ := newOrchestrator(src, &scoreAnalyzer{scores: map[string]float64{"a": 0.9}}, st)
	_, err := o.Run(context.Background(), testPrefs("Remote"), runs.TriggerManual)
	require.NoError(t, err)

	require.NoError(t, o.Transition(context.Background(), "a", model.StateSaved, ""))
	assert.Equal(t, model.StateSaved, currentState(t, st, "a"))

	err = o.Transition(context.Background(), "a", model.StateRelevant, "")
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Equal(t, model.StateSaved, currentState(t, st, "a"))
	err = o.Transition(context.Background(), "missing", model.StateViewed, "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
