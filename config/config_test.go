package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/domain/schedule"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval)
	assert.Equal(t, 3001, cfg.Scheduler.HealthPort)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, schedule.DefaultConfig(), cfg.Schedule.Domain())
	assert.True(t, cfg.Features.IsEnabled(FeatureReminders))
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
}

func TestParse_ScheduleOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LEADERBOARD_DAY_OF_WEEK", "3")
	t.Setenv("LEADERBOARD_HOUR", "18")
	t.Setenv("LEADERBOARD_MINUTE", "30")
	t.Setenv("LEADERBOARD_INTERVAL_WEEKS", "1")
	t.Setenv("LEADERBOARD_INTERVAL_MODE", "Continuous")

	cfg, err := Parse()
	require.NoError(t, err)

	sched := cfg.Schedule.Domain()
	assert.Equal(t, time.Wednesday, sched.DayOfWeek)
	assert.Equal(t, 18, sched.Hour)
	assert.Equal(t, 30, sched.Minute)
	assert.Equal(t, 1, sched.IntervalWeeks)
	assert.Equal(t, schedule.IntervalModeContinuous, sched.IntervalMode)
	require.NoError(t, sched.Validate())
}

func TestParse_RejectsOutOfRangeSchedule(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LEADERBOARD_HOUR", "24")
	t.Setenv("LEADERBOARD_INTERVAL_WEEKS", "0")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEADERBOARD_HOUR must be 0-23")
	assert.Contains(t, err.Error(), "LEADERBOARD_INTERVAL_WEEKS must be >= 1")
}

func TestParse_PostgresNeedsURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestFeatureFlags(t *testing.T) {
	f := FeatureFlags{Reminders: true, ReadAPI: true}

	assert.True(t, f.IsEnabled("REMINDERS"))
	assert.False(t, f.IsEnabled(FeatureGapTrend))
	assert.False(t, f.IsEnabled("unknown"))
	assert.Equal(t, []string{FeatureReminders, FeatureReadAPI}, f.Enabled())
}

func TestRequireDiscord(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireDiscord())

	cfg.Discord.Token = "token"
	assert.NoError(t, cfg.RequireDiscord())
}

func TestParse_RejectsBadHealthPort(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("SCHEDULER_HEALTH_PORT", "70000")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_HEALTH_PORT must be 0-65535")
}
