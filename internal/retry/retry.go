package retry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// backoff holds the shared retry budget and delay schedule.
type backoff struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// wait sleeps before the given retry attempt. It returns an error if ctx is
// cancelled first.
func (b backoff) wait(ctx context.Context, attempt int, lastErr error) error {
	delay := b.delay(attempt, lastErr)

	b.logger.Warn("retrying after transient error",
		"attempt", attempt,
		"max_retries", b.maxRetries,
		"delay", delay,
		"error", lastErr,
	)

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

// delay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (b backoff) delay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := b.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// RetrySource is a decorator that restarts a posting sequence when it fails
// before producing anything. Once a posting has been yielded a failure is
// passed through, since sequences cannot resume mid-stream.
type RetrySource struct {
	inner model.PostingSource
	backoff
}

// NewRetrySource wraps a PostingSource with retry logic.
// maxRetries is the number of additional attempts after the first failure (default: 2).
// baseDelay is the delay before the first retry (default: 5s), doubled on each subsequent retry.
func NewRetrySource(inner model.PostingSource, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:   inner,
		backoff: backoff{maxRetries: maxRetries, baseDelay: baseDelay, logger: logger},
	}
}

// Fetch yields postings from the wrapped source, retrying an opening failure.
func (s *RetrySource) Fetch(ctx context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		var lastErr error
		for attempt := 0; attempt <= s.maxRetries; attempt++ {
			if attempt > 0 {
				if err := s.wait(ctx, attempt, lastErr); err != nil {
					yield(model.JobPosting{}, err)
					return
				}
			}

			started := false
			lastErr = nil
			for p, err := range s.inner.Fetch(ctx, q) {
				if err != nil {
					if !started && attempt < s.maxRetries && isRetryable(err) {
						lastErr = err
						break
					}
					yield(model.JobPosting{}, err)
					return
				}
				started = true
				if !yield(p, nil) {
					return
				}
			}
			if lastErr == nil {
				return
			}
		}
	}
}

// RetryAnalyzer is a decorator that bounds each analysis call with a timeout
// and retries transient provider failures.
type RetryAnalyzer struct {
	inner   model.PostingAnalyzer
	timeout time.Duration
	backoff
}

// NewRetryAnalyzer wraps a PostingAnalyzer. A zero timeout leaves calls
// unbounded apart from the caller's context.
func NewRetryAnalyzer(inner model.PostingAnalyzer, maxRetries int, baseDelay, timeout time.Duration, logger *slog.Logger) *RetryAnalyzer {
	return &RetryAnalyzer{
		inner:   inner,
		timeout: timeout,
		backoff: backoff{maxRetries: maxRetries, baseDelay: baseDelay, logger: logger},
	}
}

func (a *RetryAnalyzer) Analyze(ctx context.Context, posting model.JobPosting, prefs model.Preferences) (model.AnalysisResult, error) {
	result, err := a.call(ctx, posting, prefs)
	if err == nil {
		return result, nil
	}

	for attempt := 1; attempt <= a.maxRetries && isRetryable(err) && ctx.Err() == nil; attempt++ {
		if werr := a.wait(ctx, attempt, err); werr != nil {
			return model.AnalysisResult{}, werr
		}
		result, err = a.call(ctx, posting, prefs)
		if err == nil {
			return result, nil
		}
	}
	return model.AnalysisResult{}, err
}

func (a *RetryAnalyzer) call(ctx context.Context, posting model.JobPosting, prefs model.Preferences) (model.AnalysisResult, error) {
	if a.timeout <= 0 {
		return a.inner.Analyze(ctx, posting, prefs)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.inner.Analyze(callCtx, posting, prefs)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// The per-call deadline fired, not the caller's; treat it as a provider timeout.
		return model.AnalysisResult{}, fmt.Errorf("%w: call timed out after %s", model.ErrProviderError, a.timeout)
	}
	return result, err
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A response that does not parse will not parse the second time either.
	if errors.Is(err, model.ErrMalformedResponse) || errors.Is(err, model.ErrInvalidPreferences) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests: retryable.
		if httpErr.StatusCode == 429 {
			return true
		}
		// 5xx: retryable.
		if httpErr.StatusCode >= 500 {
			return true
		}
		// 4xx (not 429): not retryable.
		return false
	}

	// Non-HTTP errors (network, DNS, provider hiccups): retryable.
	return true
}
