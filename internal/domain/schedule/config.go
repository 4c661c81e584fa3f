// Package schedule computes when a competition's leaderboard is posted and
// when the reminder before it fires. Everything here is a pure function of
// its inputs; the live trigger lives in the scheduler infrastructure.
package schedule

import (
	"fmt"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// IntervalMode selects how "every Nth week" is evaluated.
type IntervalMode string

const (
	// IntervalModeMonth derives the week number from the day of month,
	// ceil(day/7), so the count restarts every calendar month.
	IntervalModeMonth IntervalMode = "month"

	// IntervalModeContinuous counts weeks continuously from ContinuousEpoch.
	IntervalModeContinuous IntervalMode = "continuous"
)

// ContinuousEpoch is the Sunday week zero is counted from in continuous mode.
var ContinuousEpoch = time.Date(1970, time.January, 4, 0, 0, 0, 0, time.UTC)

// Default schedule values (all UTC).
const (
	DefaultEnabled       = true
	DefaultDayOfWeek     = time.Sunday
	DefaultHour          = 23
	DefaultMinute        = 59
	DefaultIntervalWeeks = 2
)

// Config describes a weekly trigger time with an interval-week filter.
type Config struct {
	Enabled       bool
	DayOfWeek     time.Weekday
	Hour          int
	Minute        int
	IntervalWeeks int
	IntervalMode  IntervalMode
}

// DefaultConfig returns Sunday 23:59 UTC every second week.
func DefaultConfig() Config {
	return Config{
		Enabled:       DefaultEnabled,
		DayOfWeek:     DefaultDayOfWeek,
		Hour:          DefaultHour,
		Minute:        DefaultMinute,
		IntervalWeeks: DefaultIntervalWeeks,
		IntervalMode:  IntervalModeMonth,
	}
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.DayOfWeek < time.Sunday || c.DayOfWeek > time.Saturday {
		return shared.ErrInvalidDayOfWeek
	}
	if c.Hour < 0 || c.Hour > 23 {
		return shared.ErrInvalidHour
	}
	if c.Minute < 0 || c.Minute > 59 {
		return shared.ErrInvalidMinute
	}
	if c.IntervalWeeks < 1 {
		return shared.ErrInvalidInterval
	}
	switch c.IntervalMode {
	case "", IntervalModeMonth, IntervalModeContinuous:
	default:
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown interval mode %q", c.IntervalMode))
	}
	return nil
}

// String renders the schedule for logs, e.g. "Sunday 23:59 UTC every 2 weeks (month)".
func (c Config) String() string {
	mode := c.IntervalMode
	if mode == "" {
		mode = IntervalModeMonth
	}
	return fmt.Sprintf("%s %02d:%02d UTC every %d weeks (%s)", c.DayOfWeek, c.Hour, c.Minute, c.IntervalWeeks, mode)
}

// WeekOfMonth returns ceil(dayOfMonth/7), a value in 1..5.
func WeekOfMonth(t time.Time) int {
	return (t.UTC().Day() + 6) / 7
}

// Qualifies applies the interval-week rule to a candidate instant.
func (c Config) Qualifies(t time.Time) bool {
	interval := c.IntervalWeeks
	if interval < 1 {
		interval = 1
	}
	if c.IntervalMode == IntervalModeContinuous {
		weeks := int(t.UTC().Sub(ContinuousEpoch) / (7 * 24 * time.Hour))
		return weeks%interval == 0
	}
	return (WeekOfMonth(t)-1)%interval == 0
}
