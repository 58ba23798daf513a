package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// JobState is the lifecycle state of a stored posting.
type JobState string

const (
	StateNew        JobState = "new"
	StateViewed     JobState = "viewed"
	StateRelevant   JobState = "relevant"
	StateIrrelevant JobState = "irrelevant"
	StateSaved      JobState = "saved"
	StateApplied    JobState = "applied"
	StateRejected   JobState = "rejected"
)

// statePrecedence ranks states for badge and summary selection. Higher wins.
var statePrecedence = map[JobState]int{
	StateNew:        0,
	StateIrrelevant: 1,
	StateViewed:     2,
	StateRelevant:   3,
	StateRejected:   4,
	StateSaved:      5,
	StateApplied:    6,
}

// AllJobStates returns every state in lifecycle order.
func AllJobStates() []JobState {
	return []JobState{StateNew, StateViewed, StateRelevant, StateIrrelevant, StateSaved, StateApplied, StateRejected}
}

// StatesByPrecedence returns every state, highest precedence first.
func StatesByPrecedence() []JobState {
	states := AllJobStates()
	slices.SortFunc(states, func(a, b JobState) int {
		return cmp.Compare(b.Precedence(), a.Precedence())
	})
	return states
}

// ParseJobState converts a string into a JobState. Matching is case-insensitive.
func ParseJobState(s string) (JobState, error) {
	st := JobState(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statePrecedence[st]; !ok {
		return "", fmt.Errorf("%w: unknown job state %q", ErrInvalidState, s)
	}
	return st, nil
}

func (s JobState) Precedence() int {
	return statePrecedence[s]
}

// UserSettable reports whether a user may move a posting into this state by hand.
func (s JobState) UserSettable() bool {
	switch s {
	case StateViewed, StateSaved, StateApplied, StateRejected:
		return true
	}
	return false
}

// DominantState returns the highest-precedence state, or StateNew for an empty list.
func DominantState(states []JobState) JobState {
	best := StateNew
	for _, s := range states {
		if s.Precedence() > best.Precedence() {
			best = s
		}
	}
	return best
}

// StateTransition is one entry of a posting's append-only state history.
type StateTransition struct {
	State     JobState  `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// CurrentState returns the state of the last transition.
func CurrentState(history []StateTransition) JobState {
	if len(history) == 0 {
		return StateNew
	}
	return history[len(history)-1].State
}

// NextTransitionTime clamps now so history timestamps never go backwards.
func NextTransitionTime(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
