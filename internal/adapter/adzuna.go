package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
)

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Company     adzunaName `json:"company"`
	Location    adzunaName `json:"location"`
	RedirectURL string     `json:"redirect_url"`
}

type adzunaName struct {
	DisplayName string `json:"display_name"`
}

// AdzunaSource reads postings from the Adzuna search API, one page of up to
// fifty results at a time.
type AdzunaSource struct {
	baseURL  string
	appID    string
	appKey   string
	country  string
	maxPages int
	client   *http.Client
	now      func() time.Time
}

// NewAdzunaSource creates a source for the given country code ("us", "gb", ...).
func NewAdzunaSource(appID, appKey, country string, maxPages int, client *http.Client) *AdzunaSource {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &AdzunaSource{
		baseURL:  adzunaBaseURL,
		appID:    appID,
		appKey:   appKey,
		country:  country,
		maxPages: maxPages,
		client:   client,
		now:      time.Now,
	}
}

func (s *AdzunaSource) Fetch(ctx context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		if s.appID == "" || s.appKey == "" {
			yield(model.JobPosting{}, errors.New("adzuna: app_id and app_key are required"))
			return
		}

		for page := 1; page <= s.maxPages; page++ {
			batch, err := s.fetchPage(ctx, q, page)
			if err != nil {
				yield(model.JobPosting{}, fmt.Errorf("adzuna search %q page %d: %w", q.String(), page, err))
				return
			}
			for _, p := range batch {
				if !yield(p, nil) {
					return
				}
			}
			if len(batch) < adzunaPageSize {
				return
			}
		}
	}
}

func (s *AdzunaSource) fetchPage(ctx context.Context, q model.SearchQuery, page int) ([]model.JobPosting, error) {
	params := url.Values{}
	params.Set("app_id", s.appID)
	params.Set("app_key", s.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Term)
	params.Set("where", q.Location)
	params.Set("sort_by", "date")
	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", s.baseURL, s.country, page, params.Encode())

	resp, err := get(ctx, s.client, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp adzunaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	postings := make([]model.JobPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		postings = append(postings, model.JobPosting{
			ExternalID:   "adzuna-" + r.ID,
			Title:        extractText(r.Title),
			Company:      r.Company.DisplayName,
			Location:     r.Location.DisplayName,
			Description:  cleanDescription(r.Description),
			URL:          r.RedirectURL,
			Source:       "adzuna",
			SourceTerm:   q.Term,
			DiscoveredAt: s.now(),
		})
	}
	return postings, nil
}
