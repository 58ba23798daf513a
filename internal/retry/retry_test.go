package retry

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource calls a function on each Fetch, tracking call count.
type mockSource struct {
	calls int
	fn    func(attempt int) ([]model.JobPosting, error)
}

func (m *mockSource) Fetch(_ context.Context, _ model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	m.calls++
	postings, err := m.fn(m.calls)
	return func(yield func(model.JobPosting, error) bool) {
		for _, p := range postings {
			if !yield(p, nil) {
				return
			}
		}
		if err != nil {
			yield(model.JobPosting{}, err)
		}
	}
}

func collect(seq iter.Seq2[model.JobPosting, error]) ([]model.JobPosting, error) {
	var out []model.JobPosting
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

var query = model.SearchQuery{Term: "Go Developer", Location: "Remote"}

func TestRetrySource_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return []model.JobPosting{{ExternalID: "1", Title: "Engineer"}}, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := collect(rs.Fetch(context.Background(), query))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "1" {
		t.Fatalf("unexpected postings: %v", got)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetrySource_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockSource{fn: func(attempt int) ([]model.JobPosting, error) {
		if attempt == 1 {
			return nil, model.NewHTTPError(503, 0)
		}
		return []model.JobPosting{{ExternalID: "1"}}, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := collect(rs.Fetch(context.Background(), query))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(got))
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetrySource_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return nil, &model.HTTPError{StatusCode: 404, Err: errors.New("not found")}
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := collect(rs.Fetch(context.Background(), query))
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetrySource_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return nil, model.NewHTTPError(429, 0)
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := collect(rs.Fetch(context.Background(), query))
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetrySource_NoRetryAfterFirstPosting(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return []model.JobPosting{{ExternalID: "1"}, {ExternalID: "2"}}, model.NewHTTPError(502, 0)
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := collect(rs.Fetch(context.Background(), query))
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("expected mid-stream error to surface, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 postings before the error, got %d", len(got))
	}
	if mock.calls != 1 {
		t.Fatalf("expected no restart, got %d calls", mock.calls)
	}
}

func TestRetrySource_StopsWhenConsumerStops(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return []model.JobPosting{{ExternalID: "1"}, {ExternalID: "2"}, {ExternalID: "3"}}, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	n := 0
	for range rs.Fetch(context.Background(), query) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2, got %d", n)
	}
}

func TestRetrySource_RespectsContextCancellation(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.JobPosting, error) {
		return nil, model.NewHTTPError(500, 0)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	rs := NewRetrySource(mock, 5, 5*time.Second, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := collect(rs.Fetch(ctx, query))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("retry did not stop promptly on cancellation")
	}
}

type mockAnalyzer struct {
	calls int
	fn    func(ctx context.Context, attempt int) (model.AnalysisResult, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, _ model.JobPosting, _ model.Preferences) (model.AnalysisResult, error) {
	m.calls++
	return m.fn(ctx, m.calls)
}

func TestRetryAnalyzer_RetriesProviderError(t *testing.T) {
	mock := &mockAnalyzer{fn: func(_ context.Context, attempt int) (model.AnalysisResult, error) {
		if attempt < 3 {
			return model.AnalysisResult{}, model.ErrProviderError
		}
		return model.AnalysisResult{RelevanceScore: 0.8}, nil
	}}

	ra := NewRetryAnalyzer(mock, 2, time.Millisecond, 0, discardLogger())
	got, err := ra.Analyze(context.Background(), model.JobPosting{}, model.Preferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RelevanceScore != 0.8 || mock.calls != 3 {
		t.Fatalf("got score %.2f after %d calls", got.RelevanceScore, mock.calls)
	}
}

func TestRetryAnalyzer_MalformedNotRetried(t *testing.T) {
	mock := &mockAnalyzer{fn: func(_ context.Context, _ int) (model.AnalysisResult, error) {
		return model.AnalysisResult{}, model.ErrMalformedResponse
	}}

	ra := NewRetryAnalyzer(mock, 2, time.Millisecond, 0, discardLogger())
	_, err := ra.Analyze(context.Background(), model.JobPosting{}, model.Preferences{})
	if !errors.Is(err, model.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetryAnalyzer_PerCallTimeout(t *testing.T) {
	mock := &mockAnalyzer{fn: func(ctx context.Context, _ int) (model.AnalysisResult, error) {
		<-ctx.Done()
		return model.AnalysisResult{}, ctx.Err()
	}}

	ra := NewRetryAnalyzer(mock, 1, time.Millisecond, 20*time.Millisecond, discardLogger())
	_, err := ra.Analyze(context.Background(), model.JobPosting{}, model.Preferences{})
	if !errors.Is(err, model.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("expected timeout to be retried once, got %d calls", mock.calls)
	}
}
