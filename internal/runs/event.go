package runs

import (
	"encoding/json"
	"time"
)

// EventKind names an event in a run's step log.
type EventKind string

const (
	EventJobFound      EventKind = "job_found"
	EventScrapeFailed  EventKind = "scrape_failed"
	EventAnalyzed      EventKind = "analyzed"
	EventPersistFailed EventKind = "persist_failed"
	EventComplete      EventKind = "complete"
	EventError         EventKind = "error"
)

// Step names used by the pipeline.
const (
	StepInit       = "init"
	StepScraping   = "scraping"
	StepAnalyzing  = "analyzing"
	StepPersisting = "persisting"
)

// Payload is the data carried by an event. The set of payload types is closed.
type Payload interface {
	Kind() EventKind
}

type JobFound struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Company    string `json:"company"`
}

type ScrapeFailed struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// Analyzed carries a nil Score when analysis failed.
type Analyzed struct {
	ExternalID string   `json:"external_id"`
	Score      *float64 `json:"score"`
	Relevant   bool     `json:"relevant"`
	Error      string   `json:"error,omitempty"`
}

type PersistFailed struct {
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
}

// Counts are the aggregate tallies reported when a run completes.
type Counts struct {
	Found            int `json:"found"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Analyzed         int `json:"analyzed"`
	AnalysisFailed   int `json:"analysis_failed"`
	Relevant         int `json:"relevant"`
	Persisted        int `json:"persisted"`
	PersistFailed    int `json:"persist_failed"`
	ScrapeErrors     int `json:"scrape_errors"`
}

type Complete struct {
	Counts Counts `json:"counts"`
}

type Failed struct {
	Error string `json:"error"`
}

func (JobFound) Kind() EventKind      { return EventJobFound }
func (ScrapeFailed) Kind() EventKind  { return EventScrapeFailed }
func (Analyzed) Kind() EventKind      { return EventAnalyzed }
func (PersistFailed) Kind() EventKind { return EventPersistFailed }
func (Complete) Kind() EventKind      { return EventComplete }
func (Failed) Kind() EventKind        { return EventError }

// Event is one timestamped entry in a step.
type Event struct {
	Data      Payload
	Timestamp time.Time
}

func (e Event) Kind() EventKind {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind()
}

// MarshalJSON renders {event, data, timestamp}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event     EventKind `json:"event"`
		Data      Payload   `json:"data"`
		Timestamp time.Time `json:"timestamp"`
	}{e.Kind(), e.Data, e.Timestamp})
}
