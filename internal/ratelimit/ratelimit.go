package ratelimit

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// SourceRateLimiter enforces a minimum delay between requests to the same
// posting source.
type SourceRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: source name
	minDelay time.Duration
}

// NewSourceRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same source.
func NewSourceRateLimiter(minDelay time.Duration) *SourceRateLimiter {
	return &SourceRateLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to source.
// Returns an error if the context is cancelled while waiting.
func (r *SourceRateLimiter) Wait(ctx context.Context, source string) error {
	r.mu.Lock()
	last, ok := r.lastCall[source]
	now := time.Now()

	if !ok || now.Sub(last) >= r.minDelay {
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	// Reserve the next slot before releasing the lock so concurrent callers
	// queue behind each other instead of firing together.
	next := last.Add(r.minDelay)
	r.lastCall[source] = next
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
	case <-time.After(time.Until(next)):
	}
	return nil
}

// RateLimitedSource is a decorator that waits for the limiter before each
// query is fetched from the wrapped source.
type RateLimitedSource struct {
	inner   model.PostingSource
	limiter *SourceRateLimiter
	source  string
}

// NewRateLimitedSource wraps a PostingSource with source-level rate limiting.
// All wrappers targeting the same source should share the same limiter instance.
func NewRateLimitedSource(inner model.PostingSource, limiter *SourceRateLimiter, source string) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
		source:  source,
	}
}

func (s *RateLimitedSource) Fetch(ctx context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		if err := s.limiter.Wait(ctx, s.source); err != nil {
			yield(model.JobPosting{}, err)
			return
		}
		for p, err := range s.inner.Fetch(ctx, q) {
			if !yield(p, err) {
				return
			}
		}
	}
}
