package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionWindow(t *testing.T) {
	calc := NewCalculator()
	cfg := DefaultConfig()

	w, ok := calc.SubmissionWindow(cfg, utc(2024, time.March, 3, 22, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, time.March, 3, 22, 0), w.Opens)
	assert.Equal(t, utc(2024, time.March, 3, 23, 55), w.Closes)
	assert.Equal(t, utc(2024, time.March, 3, 23, 59), w.Post)

	_, ok = calc.SubmissionWindow(cfg, utc(2024, time.March, 3, 23, 56))
	assert.False(t, ok, "closed after the cutoff")

	_, ok = calc.SubmissionWindow(cfg, utc(2024, time.March, 3, 21, 59))
	assert.False(t, ok, "not open yet")

	_, ok = calc.SubmissionWindow(cfg, utc(2024, time.March, 10, 22, 30))
	assert.False(t, ok, "even week has no window")
}

func TestNextSubmissionWindow(t *testing.T) {
	calc := NewCalculator()
	cfg := DefaultConfig()

	w, ok := calc.NextSubmissionWindow(cfg, utc(2024, time.March, 1, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, time.March, 3, 22, 0), w.Opens)

	// Inside the current window the next one is two weeks out.
	w, ok = calc.NextSubmissionWindow(cfg, utc(2024, time.March, 3, 22, 30))
	require.True(t, ok)
	assert.Equal(t, utc(2024, time.March, 17, 22, 0), w.Opens)
}
