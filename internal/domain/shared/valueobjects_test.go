package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepCount_Range(t *testing.T) {
	tests := []struct {
		name    string
		in      int
		wantErr bool
	}{
		{"zero", 0, false},
		{"max", 1_000_000, false},
		{"negative", -1, true},
		{"above max", 1_000_001, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStepCount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValueOutOfRange)
				assert.True(t, IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStepCountFromFloat_RejectsFractions(t *testing.T) {
	_, err := StepCountFromFloat(100.5)
	assert.True(t, IsValidation(err))

	sc, err := StepCountFromFloat(12345)
	require.NoError(t, err)
	assert.Equal(t, 12345, sc.Int())
}

func TestFormatSteps(t *testing.T) {
	assert.Equal(t, "0", FormatSteps(0))
	assert.Equal(t, "999", FormatSteps(999))
	assert.Equal(t, "1,000", FormatSteps(1000))
	assert.Equal(t, "12,345", FormatSteps(12345))
	assert.Equal(t, "1,000,000", FormatSteps(1_000_000))
	assert.Equal(t, "-4,200", FormatSteps(-4200))
	assert.Equal(t, "8,000", StepCount(8000).String())
}

func TestRank_Medal(t *testing.T) {
	assert.Equal(t, "🥇", Rank(1).Medal())
	assert.Equal(t, "🥈", Rank(2).Medal())
	assert.Equal(t, "🥉", Rank(3).Medal())
	assert.Equal(t, "🥉", Rank(17).Medal())
	assert.True(t, Rank(1).IsLeader())
	assert.False(t, Unranked.IsValid())
}

func TestDateKey(t *testing.T) {
	at := time.Date(2024, time.March, 5, 23, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))
	key := DateKeyOf(at)
	assert.Equal(t, DateKey("2024-03-06"), key)

	start, err := key.Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC), start)

	_, err = DateKey("nope").Time()
	assert.True(t, IsValidation(err))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsRetryable(ErrSubmissionConflict))
	assert.True(t, IsConflict(ErrSubmissionConflict))
	assert.True(t, IsNotFound(ErrParticipantNotFound))
	assert.True(t, IsAlreadyExists(ErrDeviceLinked))
	assert.True(t, IsConfigurationMissing(ErrCompetitionNotStarted))
	assert.False(t, IsRetryable(ErrStepCountOutOfRange))
	assert.ErrorIs(t, WrapError("x", "y", ErrNotFound, "msg", ErrTimeout), ErrTimeout)
}
