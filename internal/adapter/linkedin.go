package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobscout/internal/model"
)

const (
	linkedInBaseURL  = "https://www.linkedin.com/jobs-guest/jobs/api"
	linkedInPageSize = 25

	detailRetries   = 2
	detailBaseDelay = 2 * time.Second
)

// linkedInExperience maps experience level names onto LinkedIn's f_E codes.
var linkedInExperience = map[string]string{
	"internship":       "1",
	"entry level":      "2",
	"associate":        "3",
	"mid-senior level": "4",
	"director":         "5",
	"executive":        "6",
}

// LinkedInSource pages through LinkedIn's public guest job search and fetches
// each posting's detail page for its description.
type LinkedInSource struct {
	baseURL  string
	client   *http.Client
	maxPages int
	now      func() time.Time

	// retries for detail pages and later result pages; a card whose detail
	// never loads keeps an empty description
	retries   int
	baseDelay time.Duration
}

// NewLinkedInSource creates a source that reads at most maxPages result pages
// per query.
func NewLinkedInSource(client *http.Client, maxPages int) *LinkedInSource {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &LinkedInSource{
		baseURL:   linkedInBaseURL,
		client:    client,
		maxPages:  maxPages,
		now:       time.Now,
		retries:   detailRetries,
		baseDelay: detailBaseDelay,
	}
}

func (s *LinkedInSource) Fetch(ctx context.Context, q model.SearchQuery) iter.Seq2[model.JobPosting, error] {
	return func(yield func(model.JobPosting, error) bool) {
		for page := 0; page < s.maxPages; page++ {
			var cards []model.JobPosting
			fetch := func() (err error) {
				cards, err = s.fetchPage(ctx, q, page*linkedInPageSize)
				return err
			}
			var err error
			if page == 0 {
				// an opening failure is left to the caller's retry policy
				err = fetch()
			} else {
				err = s.withRetry(ctx, fetch)
			}
			if err != nil {
				yield(model.JobPosting{}, fmt.Errorf("linkedin search %q page %d: %w", q.String(), page, err))
				return
			}

			for _, p := range cards {
				var desc string
				err := s.withRetry(ctx, func() (err error) {
					desc, err = s.fetchDescription(ctx, p.ExternalID)
					return err
				})
				if err != nil && ctx.Err() != nil {
					yield(model.JobPosting{}, fmt.Errorf("linkedin detail %s: %w", p.ExternalID, err))
					return
				}
				p.Description = desc
				p.ExternalID = "linkedin-" + p.ExternalID
				p.SourceTerm = q.Term
				if !yield(p, nil) {
					return
				}
			}

			if len(cards) < linkedInPageSize {
				return
			}
		}
	}
}

func (s *LinkedInSource) searchURL(q model.SearchQuery, start int) string {
	params := url.Values{}
	params.Set("keywords", q.Term)
	params.Set("location", q.Location)
	params.Set("start", strconv.Itoa(start))
	params.Set("sortBy", "DD")

	var levels []string
	for _, l := range strings.Split(q.ExperienceLevels, ",") {
		if code, ok := linkedInExperience[strings.ToLower(strings.TrimSpace(l))]; ok {
			levels = append(levels, code)
		}
	}
	if len(levels) > 0 {
		params.Set("f_E", strings.Join(levels, ","))
	}
	if q.RemoteOK {
		params.Set("f_WT", "1,2,3")
	}
	return s.baseURL + "/seeMoreJobPostings/search?" + params.Encode()
}

// fetchPage parses one page of search result cards. Descriptions are filled in
// separately.
func (s *LinkedInSource) fetchPage(ctx context.Context, q model.SearchQuery, start int) ([]model.JobPosting, error) {
	resp, err := get(ctx, s.client, s.searchURL(q, start), "text/html")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search page: %w", err)
	}

	var postings []model.JobPosting
	doc.Find("[data-entity-urn]").Each(func(_ int, card *goquery.Selection) {
		urn, _ := card.Attr("data-entity-urn")
		id := urn[strings.LastIndex(urn, ":")+1:]
		if id == "" {
			return
		}
		link, _ := card.Find("a.base-card__full-link").Attr("href")
		if i := strings.IndexByte(link, '?'); i >= 0 {
			link = link[:i]
		}
		postings = append(postings, model.JobPosting{
			ExternalID:   id,
			Title:        cleanText(card.Find(".base-search-card__title").Text()),
			Company:      cleanText(card.Find(".base-search-card__subtitle").Text()),
			Location:     cleanText(card.Find(".job-search-card__location").Text()),
			URL:          link,
			Source:       "linkedin",
			DiscoveredAt: s.now(),
		})
	})
	return postings, nil
}

// withRetry runs fn again after rate limits and server errors, doubling the
// delay or waiting for the server's Retry-After.
func (s *LinkedInSource) withRetry(ctx context.Context, fn func() error) error {
	delay := s.baseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= s.retries || !transient(err) {
			return err
		}

		wait := delay
		var httpErr *model.HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

func transient(err error) bool {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return errors.Is(err, model.ErrSourceUnavailable)
}

func (s *LinkedInSource) fetchDescription(ctx context.Context, id string) (string, error) {
	resp, err := get(ctx, s.client, s.baseURL+"/jobPosting/"+id, "text/html")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing detail page: %w", err)
	}
	markup, err := doc.Find(".show-more-less-html__markup").First().Html()
	if err != nil {
		return "", fmt.Errorf("reading description: %w", err)
	}
	return cleanDescription(markup), nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
