package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires on multiples of Interval since the Unix epoch, so a
// one-minute schedule fires at the top of every minute.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates a new IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the first aligned instant strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return time.Time{}
	}
	return t.Truncate(s.Interval).Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
