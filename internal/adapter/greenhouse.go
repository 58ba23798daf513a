package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amishk599/jobscout/internal/filter"
	"github.com/amishk599/jobscout/internal/model"
)

const (
	greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	// greenhouseBoardTTL lets every query of one run share a board download.
	greenhouseBoardTTL = 5 * time.Minute
	// greenhouseTermStrictness is the share of the search term's words a
	// title must contain.
	greenhouseTermStrictness = 0.5
)

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	Content     string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// Board is one company's Greenhouse job board.
type Board struct {
	Token   string
	Company string
}

type cachedBoard struct {
	jobs    []greenhouseJob
	fetched time.Time
}

// GreenhouseSource searches a fixed set of Greenhouse boards. Greenhouse has
// no search endpoint, so each board is downloaded with descriptions and
// filtered locally by term and location.
type GreenhouseSource struct {
	baseURL string
	boards  []Board
	client  *http.Client
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedBoard
}

// NewGreenhouseSource creates a source over the given boards.
func NewGreenhouseSource(boards []Board, client *http.Client) *GreenhouseSource {
	return &GreenhouseSource{
		baseURL: greenhouseBaseURL,
		boards:  boards,
		client:  client,
		now:     time.Now,
		cache:   make(map[string]cachedBoard),
	}
}

func (s *GreenhouseSource) Fetch(ctx context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	titles := filter.NewTitleMatcher([]string{q.Term}, greenhouseTermStrictness)
	return func(yield func(model.JobPosting, error) bool) {
		for _, b := range s.boards {
			jobs, err := s.boardJobs(ctx, b.Token)
			if err != nil {
				yield(model.JobPosting{}, fmt.Errorf("greenhouse fetch for %s: %w", b.Token, err))
				return
			}

			for _, gj := range jobs {
				if !titles.Match(gj.Title).Matched || !locationMatches(gj.Location.Name, q) {
					continue
				}
				p := model.JobPosting{
					ExternalID:   "greenhouse-" + strconv.FormatInt(gj.ID, 10),
					Title:        gj.Title,
					Company:      b.Company,
					Location:     gj.Location.Name,
					Description:  cleanDescription(gj.Content),
					URL:          gj.AbsoluteURL,
					Source:       "greenhouse",
					SourceTerm:   q.Term,
					DiscoveredAt: s.now(),
				}
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}

func locationMatches(location string, q model.SearchQuery) bool {
	if q.RemoteOK && strings.Contains(strings.ToLower(location), "remote") {
		return true
	}
	// "San Francisco, CA" should match "San Francisco, California".
	city, _, _ := strings.Cut(q.Location, ",")
	return filter.ContainsAny(location, []string{city})
}

func (s *GreenhouseSource) boardJobs(ctx context.Context, token string) ([]greenhouseJob, error) {
	s.mu.Lock()
	c, ok := s.cache[token]
	s.mu.Unlock()
	if ok && s.now().Sub(c.fetched) < greenhouseBoardTTL {
		return c.jobs, nil
	}

	resp, err := get(ctx, s.client, fmt.Sprintf("%s/%s/jobs?content=true", s.baseURL, token), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ghResp greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&ghResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	s.mu.Lock()
	s.cache[token] = cachedBoard{jobs: ghResp.Jobs, fetched: s.now()}
	s.mu.Unlock()
	return ghResp.Jobs, nil
}
