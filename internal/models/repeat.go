package models

import (
	"time"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
)

type RepeatType string

const (
	RepeatNone    RepeatType = "none"
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
	RepeatYearly  RepeatType = "yearly"
)

type RepeatConfig struct {
	Type       RepeatType     `json:"type"`
	Interval   int            `json:"interval"`
	DaysOfWeek []time.Weekday `json:"daysOfWeek,omitempty"`
	EndDate    *time.Time     `json:"endDate,omitempty"`
}

func (r RepeatConfig) IsRepeating() bool {
	return r.Type != "" && r.Type != RepeatNone
}

// Normalize fills the defaults: an empty type means none, a zero interval means 1.
func (r RepeatConfig) Normalize() RepeatConfig {
	next := r.clone()
	if next.Type == "" {
		next.Type = RepeatNone
	}
	if next.Interval == 0 {
		next.Interval = 1
	}
	if next.Type != RepeatWeekly {
		next.DaysOfWeek = nil
	}
	return next
}

func (r RepeatConfig) Validate() error {
	switch r.Type {
	case "", RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
	default:
		return apperrors.Validation("invalid repeat type: " + string(r.Type))
	}
	if r.Interval < 0 || (r.IsRepeating() && r.Interval == 0) {
		return apperrors.Validation("repeat interval must be positive")
	}

	seen := make(map[time.Weekday]bool, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return apperrors.Validation("invalid day of week")
		}
		if seen[d] {
			return apperrors.Validation("duplicate day of week")
		}
		seen[d] = true
	}
	return nil
}

// NextDate returns the occurrence after from. ok is false when the config does
// not repeat or the next occurrence falls after EndDate.
func (r RepeatConfig) NextDate(from time.Time) (time.Time, bool) {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch r.Type {
	case RepeatDaily:
		next = from.AddDate(0, 0, interval)
	case RepeatWeekly:
		next = r.nextWeekly(from, interval)
	case RepeatMonthly:
		next = addMonthsClamped(from, 0, interval)
	case RepeatYearly:
		next = addMonthsClamped(from, interval, 0)
	default:
		return time.Time{}, false
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// nextWeekly walks forward to the next selected weekday. Wrapping into a new
// week skips interval-1 whole weeks.
func (r RepeatConfig) nextWeekly(from time.Time, interval int) time.Time {
	if len(r.DaysOfWeek) == 0 {
		return from.AddDate(0, 0, 7*interval)
	}

	selected := make(map[time.Weekday]bool, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		selected[d] = true
	}

	for offset := 1; offset <= 7; offset++ {
		candidate := from.AddDate(0, 0, offset)
		if !selected[candidate.Weekday()] {
			continue
		}
		if candidate.Weekday() <= from.Weekday() {
			candidate = candidate.AddDate(0, 0, 7*(interval-1))
		}
		return candidate
	}
	return from.AddDate(0, 0, 7*interval)
}

// addMonthsClamped adds years and months, clamping the day to the end of the target month
// so Jan 31 + 1 month is Feb 28/29 rather than early March.
func addMonthsClamped(from time.Time, years, months int) time.Time {
	first := time.Date(from.Year()+years, from.Month()+time.Month(months), 1,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	day := from.Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}

func (r RepeatConfig) clone() RepeatConfig {
	next := r
	if r.DaysOfWeek != nil {
		next.DaysOfWeek = make([]time.Weekday, len(r.DaysOfWeek))
		copy(next.DaysOfWeek, r.DaysOfWeek)
	}
	return next
}
