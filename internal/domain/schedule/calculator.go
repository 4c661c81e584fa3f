package schedule

import (
	"fmt"
	"time"
)

// ReminderLead is how long before each post the reminder fires.
const ReminderLead = time.Hour

const week = 7 * 24 * time.Hour

// Occurrence is one qualifying trigger instant.
type Occurrence struct {
	Timestamp time.Time
	TimeUntil TimeUntil
}

// TimeUntil is a floor-truncated day/hour/minute breakdown of a duration.
type TimeUntil struct {
	Days    int
	Hours   int
	Minutes int
}

// NewTimeUntil decomposes d; negative durations become zero.
func NewTimeUntil(d time.Duration) TimeUntil {
	if d < 0 {
		d = 0
	}
	return TimeUntil{
		Days:    int(d / (24 * time.Hour)),
		Hours:   int(d % (24 * time.Hour) / time.Hour),
		Minutes: int(d % time.Hour / time.Minute),
	}
}

// String returns "in 2d 3h 4m", "in 3h 4m" or "in 4m".
func (t TimeUntil) String() string {
	switch {
	case t.Days > 0:
		return fmt.Sprintf("in %dd %dh %dm", t.Days, t.Hours, t.Minutes)
	case t.Hours > 0:
		return fmt.Sprintf("in %dh %dm", t.Hours, t.Minutes)
	default:
		return fmt.Sprintf("in %dm", t.Minutes)
	}
}

// Calculator computes upcoming post and reminder instants.
// It holds no state and is safe for concurrent use.
type Calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// NextTrigger returns the first weekly instant strictly after from that
// matches the day/hour/minute of cfg. The interval filter is not applied.
func (c *Calculator) NextTrigger(cfg Config, from time.Time) time.Time {
	from = from.UTC()
	delta := (int(cfg.DayOfWeek) - int(from.Weekday()) + 7) % 7
	candidate := time.Date(from.Year(), from.Month(), from.Day()+delta, cfg.Hour, cfg.Minute, 0, 0, time.UTC)
	if !candidate.After(from) {
		candidate = candidate.Add(week)
	}
	return candidate
}

// NextOccurrences returns the next count qualifying post instants strictly
// after from, in chronological order. A disabled schedule yields none.
func (c *Calculator) NextOccurrences(cfg Config, from time.Time, count int) []Occurrence {
	if !cfg.Enabled || count <= 0 {
		return nil
	}

	out := make([]Occurrence, 0, count)
	for candidate := c.NextTrigger(cfg, from); len(out) < count; candidate = candidate.Add(week) {
		if !cfg.Qualifies(candidate) {
			continue
		}
		out = append(out, Occurrence{
			Timestamp: candidate,
			TimeUntil: NewTimeUntil(candidate.Sub(from)),
		})
	}
	return out
}

// NextReminders returns the next count reminder instants strictly after from.
// Each reminder sits ReminderLead before a qualifying post, so eligibility is
// decided by the post's week; for hour >= 1 this is the same weekday at hour-1.
func (c *Calculator) NextReminders(cfg Config, from time.Time, count int) []Occurrence {
	posts := c.NextOccurrences(cfg, from.Add(ReminderLead), count)
	out := make([]Occurrence, 0, len(posts))
	for _, p := range posts {
		at := p.Timestamp.Add(-ReminderLead)
		out = append(out, Occurrence{
			Timestamp: at,
			TimeUntil: NewTimeUntil(at.Sub(from)),
		})
	}
	return out
}

// Next returns the first qualifying post after from.
func (c *Calculator) Next(cfg Config, from time.Time) (Occurrence, bool) {
	occ := c.NextOccurrences(cfg, from, 1)
	if len(occ) == 0 {
		return Occurrence{}, false
	}
	return occ[0], true
}

// NextReminder returns the first reminder after from.
func (c *Calculator) NextReminder(cfg Config, from time.Time) (Occurrence, bool) {
	occ := c.NextReminders(cfg, from, 1)
	if len(occ) == 0 {
		return Occurrence{}, false
	}
	return occ[0], true
}

// DueBetween returns the qualifying post instant in (after, upTo], if any.
func (c *Calculator) DueBetween(cfg Config, after, upTo time.Time) (time.Time, bool) {
	occ, ok := c.Next(cfg, after)
	if !ok || occ.Timestamp.After(upTo) {
		return time.Time{}, false
	}
	return occ.Timestamp, true
}

// ReminderDueBetween returns the reminder instant in (after, upTo], if any.
func (c *Calculator) ReminderDueBetween(cfg Config, after, upTo time.Time) (time.Time, bool) {
	occ, ok := c.NextReminder(cfg, after)
	if !ok || occ.Timestamp.After(upTo) {
		return time.Time{}, false
	}
	return occ.Timestamp, true
}
