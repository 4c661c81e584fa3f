package shared

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stepbattle/stepbattle/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// Scope Value Object
// ═══════════════════════════════════════════════════════════════════════════

// ScopeID identifies one isolated competition (one per chat server).
type ScopeID string

// IsValid checks that the scope is not blank.
func (s ScopeID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s ScopeID) String() string {
	return string(s)
}

// NewScopeID creates a new ScopeID with validation.
func NewScopeID(id string) (ScopeID, error) {
	scope := ScopeID(strings.TrimSpace(id))
	if !scope.IsValid() {
		return "", ErrInvalidScope
	}
	return scope, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// StepCount Value Object
// ═══════════════════════════════════════════════════════════════════════════

// StepCount is a validated number of steps for one submission.
type StepCount int

const (
	MinStepCount StepCount = 0
	MaxStepCount StepCount = 1_000_000
)

// IsValid checks if the step count is within the accepted range.
func (s StepCount) IsValid() bool {
	return s >= MinStepCount && s <= MaxStepCount
}

// Int returns the underlying int value.
func (s StepCount) Int() int {
	return int(s)
}

// NewStepCount creates a StepCount, rejecting values outside [0, 1_000_000].
func NewStepCount(n int) (StepCount, error) {
	sc := StepCount(n)
	if !sc.IsValid() {
		return 0, ErrStepCountOutOfRange
	}
	return sc, nil
}

// String formats the count with thousands separators, e.g. "12,345".
func (s StepCount) String() string {
	return FormatSteps(int(s))
}

// stepPrinter renders counts the way the chat front end shows them.
var stepPrinter = message.NewPrinter(language.English)

// FormatSteps formats n with comma thousands separators.
func FormatSteps(n int) string {
	return stepPrinter.Sprintf("%d", n)
}

// StepCountFromFloat validates a JSON number: it must be integral and in range.
func StepCountFromFloat(f float64) (StepCount, error) {
	if f != float64(int64(f)) {
		return 0, NewDomainError("competition", "Validate", ErrInvalidInput, "step count must be an integer")
	}
	return NewStepCount(int(f))
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a participant's position in the leaderboard.
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsLeader reports whether this is rank 1.
func (r Rank) IsLeader() bool {
	return r == MinRank
}

// String returns "#N".
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Medal returns the medal emoji shown next to a rank.
// Every position from third place down gets the bronze medal.
func (r Rank) Medal() string {
	switch r {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	default:
		return "🥉"
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// DateKey Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateKey is a UTC calendar day, used as the ingestion window key.
type DateKey string

// DateKeyOf returns the UTC calendar day containing t.
func DateKeyOf(t time.Time) DateKey {
	return DateKey(timeutil.FormatDate(t))
}

// String returns the string representation.
func (d DateKey) String() string {
	return string(d)
}

// Time returns midnight UTC of the day.
func (d DateKey) Time() (time.Time, error) {
	t, err := timeutil.ParseDate(string(d))
	if err != nil {
		return time.Time{}, WrapError("shared", "DateKey", ErrInvalidInput, "invalid date key", err)
	}
	return t, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a closed time interval [From, To].
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range, both ends inclusive.
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && !tm.After(t.To)
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}
