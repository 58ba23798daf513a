package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleType selects how the next due time is computed.
type ScheduleType string

const (
	ScheduleDaily          ScheduleType = "daily"
	ScheduleWeekly         ScheduleType = "weekly"
	ScheduleCustomInterval ScheduleType = "custom_interval"
)

// ParseScheduleType converts a string into a ScheduleType.
func ParseScheduleType(s string) (ScheduleType, error) {
	switch t := ScheduleType(strings.ToLower(strings.TrimSpace(s))); t {
	case ScheduleDaily, ScheduleWeekly, ScheduleCustomInterval:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s)
}

// ScheduleConfig is the persisted schedule. ExecutionTime is "HH:MM" for
// daily, "Monday 08:00" for weekly and "interval:<hours>" for custom_interval.
type ScheduleConfig struct {
	Type          ScheduleType `json:"type"`
	ExecutionTime string       `json:"execution_time"`
	IntervalHours int          `json:"interval_hours,omitempty"`
	Enabled       bool         `json:"enabled"`
	LastRunAt     *time.Time   `json:"last_run_at,omitempty"`
}

// ClockTime is an hour and minute of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// Validate checks the execution time against the schedule type and fills
// IntervalHours for custom_interval schedules.
func (c *ScheduleConfig) Validate() error {
	if _, err := ParseScheduleType(string(c.Type)); err != nil {
		return err
	}
	switch c.Type {
	case ScheduleDaily:
		_, err := ParseClock(c.ExecutionTime)
		return err
	case ScheduleWeekly:
		_, _, err := ParseWeekly(c.ExecutionTime)
		return err
	default:
		hours, err := ParseInterval(c.ExecutionTime, c.IntervalHours)
		if err != nil {
			return err
		}
		c.IntervalHours = hours
		c.ExecutionTime = fmt.Sprintf("interval:%d", hours)
		return nil
	}
}

// ParseClock parses "HH:MM" in 24h form.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: execution time %q must be HH:MM", ErrInvalidSchedule, s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseWeekly parses "<Weekday> HH:MM", e.g. "Monday 08:00".
func ParseWeekly(s string) (time.Weekday, ClockTime, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, ClockTime{}, fmt.Errorf("%w: weekly execution time %q must be \"<Weekday> HH:MM\"", ErrInvalidSchedule, s)
	}
	day, ok := weekdays[strings.ToLower(fields[0])]
	if !ok {
		return 0, ClockTime{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, fields[0])
	}
	clock, err := ParseClock(fields[1])
	if err != nil {
		return 0, ClockTime{}, err
	}
	return day, clock, nil
}

// ParseInterval reads the hour count from "interval:<hours>", falling back to
// fallback when s is empty.
func ParseInterval(s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	hours := fallback
	if s != "" {
		raw, ok := strings.CutPrefix(s, "interval:")
		if !ok {
			return 0, fmt.Errorf("%w: custom interval %q must be \"interval:<hours>\"", ErrInvalidSchedule, s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%w: custom interval %q: %v", ErrInvalidSchedule, s, err)
		}
		hours = n
	}
	if hours < 1 {
		return 0, fmt.Errorf("%w: custom interval must be at least 1 hour", ErrInvalidSchedule)
	}
	return hours, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
