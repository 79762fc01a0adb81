package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRepeatConfig_Validate(t *testing.T) {
	assert.NoError(t, RepeatConfig{}.Validate())
	assert.NoError(t, RepeatConfig{Type: RepeatWeekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Monday, time.Friday}}.Validate())

	invalid := []RepeatConfig{
		{Type: "hourly", Interval: 1},
		{Type: RepeatDaily, Interval: -2},
		{Type: RepeatDaily, Interval: 0},
		{Type: RepeatWeekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Monday, time.Monday}},
		{Type: RepeatWeekly, Interval: 1, DaysOfWeek: []time.Weekday{9}},
	}
	for _, cfg := range invalid {
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(cfg.Validate()), "%+v", cfg)
	}
}

func TestRepeatConfig_NextDate(t *testing.T) {
	// 2024-03-10 is a Sunday.
	from := date(2024, 3, 10)

	cases := []struct {
		name string
		cfg  RepeatConfig
		want time.Time
	}{
		{"daily", RepeatConfig{Type: RepeatDaily, Interval: 1}, date(2024, 3, 11)},
		{"every third day", RepeatConfig{Type: RepeatDaily, Interval: 3}, date(2024, 3, 13)},
		{"weekly", RepeatConfig{Type: RepeatWeekly, Interval: 1}, date(2024, 3, 17)},
		{"weekly on wednesday", RepeatConfig{Type: RepeatWeekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Wednesday}}, date(2024, 3, 13)},
		{"biweekly wrapping", RepeatConfig{Type: RepeatWeekly, Interval: 2, DaysOfWeek: []time.Weekday{time.Sunday}}, date(2024, 3, 24)},
		{"monthly", RepeatConfig{Type: RepeatMonthly, Interval: 1}, date(2024, 4, 10)},
		{"yearly", RepeatConfig{Type: RepeatYearly, Interval: 1}, date(2025, 3, 10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.cfg.NextDate(from)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRepeatConfig_NextDateClampsMonthEnd(t *testing.T) {
	got, ok := RepeatConfig{Type: RepeatMonthly, Interval: 1}.NextDate(date(2024, 1, 31))
	assert.True(t, ok)
	assert.Equal(t, date(2024, 2, 29), got)

	got, ok = RepeatConfig{Type: RepeatYearly, Interval: 1}.NextDate(date(2024, 2, 29))
	assert.True(t, ok)
	assert.Equal(t, date(2025, 2, 28), got)
}

func TestRepeatConfig_NextDateStops(t *testing.T) {
	_, ok := RepeatConfig{Type: RepeatNone}.NextDate(date(2024, 3, 10))
	assert.False(t, ok)

	end := date(2024, 3, 11)
	cfg := RepeatConfig{Type: RepeatDaily, Interval: 1, EndDate: &end}
	_, ok = cfg.NextDate(date(2024, 3, 10))
	assert.True(t, ok)
	_, ok = cfg.NextDate(date(2024, 3, 11))
	assert.False(t, ok)
}
