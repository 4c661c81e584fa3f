package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/memory"
)

const guild = "guild-1"

// Wednesday 2024-01-17 20:00 UTC.
var now = time.Date(2024, time.January, 17, 20, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func sequentialIDs() IDGenerator {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("rec-%03d", n), nil
	}
}

func newRecordHandler(repo competition.Repository, at time.Time) *RecordSubmissionHandler {
	return NewRecordSubmissionHandler(repo).WithClock(fixedClock(at)).WithIDGenerator(sequentialIDs())
}

// ─────────────────────────────────────────────────────────────────────────────
// RecordSubmission
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordSubmission_FirstThenReplace(t *testing.T) {
	repo := memory.NewRepository()
	h := newRecordHandler(repo, now)
	ctx := context.Background()

	first, err := h.Handle(ctx, RecordSubmissionCommand{ScopeID: guild, ParticipantID: "phone", StepCount: 5000, Source: competition.SourceDeviceAPI})
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.Nil(t, first.PreviousValue)
	assert.Equal(t, "Successfully submitted 5,000 steps for this week.", first.Message())

	second, err := h.Handle(ctx, RecordSubmissionCommand{ScopeID: guild, ParticipantID: "phone", StepCount: 3000, Source: competition.SourceDeviceAPI})
	require.NoError(t, err)
	require.NotNil(t, second.PreviousValue)
	assert.Equal(t, 5000, *second.PreviousValue)
	assert.Equal(t, "Updated your step submission from 5,000 to 3,000 steps for this week.", second.Message())

	p, err := repo.GetParticipant(ctx, guild, "phone")
	require.NoError(t, err)
	require.Len(t, p.History, 1)
	assert.Equal(t, 3000, p.History[0].StepCount)
	assert.Equal(t, "phone", p.DisplayName)
}

func TestRecordSubmission_Validation(t *testing.T) {
	h := newRecordHandler(memory.NewRepository(), now)

	tests := []struct {
		name string
		cmd  RecordSubmissionCommand
	}{
		{"negative", RecordSubmissionCommand{ScopeID: guild, ParticipantID: "p", StepCount: -1, Source: competition.SourceDeviceAPI}},
		{"too many", RecordSubmissionCommand{ScopeID: guild, ParticipantID: "p", StepCount: 1_000_001, Source: competition.SourceDeviceAPI}},
		{"no scope", RecordSubmissionCommand{ParticipantID: "p", StepCount: 1, Source: competition.SourceDeviceAPI}},
		{"no participant", RecordSubmissionCommand{ScopeID: guild, StepCount: 1, Source: competition.SourceDeviceAPI}},
		{"bad source", RecordSubmissionCommand{ScopeID: guild, ParticipantID: "p", StepCount: 1, Source: "carrier-pigeon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), err.Error())
		})
	}
}

func TestRecordSubmission_BoundsAreInclusive(t *testing.T) {
	h := newRecordHandler(memory.NewRepository(), now)

	for _, steps := range []int{0, 1_000_000} {
		res, err := h.Handle(context.Background(), RecordSubmissionCommand{
			ScopeID: guild, ParticipantID: fmt.Sprintf("p%d", steps), StepCount: steps, Source: competition.SourceDeviceAPI,
		})
		require.NoError(t, err)
		assert.True(t, res.Accepted)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SubmitManualSteps
// ─────────────────────────────────────────────────────────────────────────────

func startedRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	_, err := NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).
		WithClock(fixedClock(now.AddDate(0, 0, -3))).
		Start(context.Background(), StartCompetitionCommand{ScopeID: guild, ChannelID: "chan-1"})
	require.NoError(t, err)
	return repo
}

func TestSubmitManualSteps_RequiresStart(t *testing.T) {
	repo := memory.NewRepository()
	h := NewSubmitManualStepsHandler(repo, newRecordHandler(repo, now)).WithClock(fixedClock(now))

	_, err := h.Handle(context.Background(), SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42", Week1: 1, Week2: 2})
	assert.ErrorIs(t, err, shared.ErrCompetitionNotStarted)
	assert.True(t, shared.IsConfigurationMissing(err))
}

func TestSubmitManualSteps_BeforeFirstPeriod(t *testing.T) {
	repo := memory.NewRepository()
	cfg, err := competition.NewCompetitionConfig(guild, schedule.DefaultConfig(), now)
	require.NoError(t, err)
	require.NoError(t, cfg.Start("chan-1", now.AddDate(0, 0, 20), now))
	require.NoError(t, repo.SaveCompetitionConfig(context.Background(), cfg))

	h := NewSubmitManualStepsHandler(repo, newRecordHandler(repo, now)).WithClock(fixedClock(now))
	_, err = h.Handle(context.Background(), SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42", Week1: 1, Week2: 2})
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrCompetitionNotStarted)
	assert.True(t, shared.IsConfigurationMissing(err))

	_, err = repo.GetParticipant(context.Background(), guild, "discord_42")
	assert.True(t, shared.IsNotFound(err))
}

func TestSubmitManualSteps_ReplacesWithinPeriod(t *testing.T) {
	repo := startedRepo(t)
	h := NewSubmitManualStepsHandler(repo, newRecordHandler(repo, now)).WithClock(fixedClock(now))
	ctx := context.Background()

	res, err := h.Handle(ctx, SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42", DisplayName: "ann", Week1: 40000, Week2: 30000})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, "discord_42", res.ParticipantID)
	assert.Equal(t, 70000, res.Total)
	assert.True(t, res.Period.Contains(now))

	h.WithClock(fixedClock(now.Add(26 * time.Hour)))
	res, err = h.Handle(ctx, SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42", Week1: 50000, Week2: 30000})
	require.NoError(t, err)
	require.NotNil(t, res.PreviousValue)
	assert.Equal(t, 70000, *res.PreviousValue)

	p, err := repo.GetParticipant(ctx, guild, "discord_42")
	require.NoError(t, err)
	require.Len(t, p.History, 1)
	assert.Equal(t, 80000, p.History[0].StepCount)
	assert.Equal(t, competition.SourceManualEntry, p.History[0].Source)
	assert.Equal(t, "ann", p.DisplayName)
}

func TestSubmitManualSteps_ZeroTotalRecordsNothing(t *testing.T) {
	repo := startedRepo(t)
	h := NewSubmitManualStepsHandler(repo, newRecordHandler(repo, now)).WithClock(fixedClock(now))

	res, err := h.Handle(context.Background(), SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42"})
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	_, err = repo.GetParticipant(context.Background(), guild, "discord_42")
	assert.True(t, shared.IsNotFound(err))
}

func TestSubmitManualSteps_RejectsNegativeWeeks(t *testing.T) {
	repo := startedRepo(t)
	h := NewSubmitManualStepsHandler(repo, nil).WithClock(fixedClock(now))

	_, err := h.Handle(context.Background(), SubmitManualStepsCommand{ScopeID: guild, ChatUserID: "42", Week1: -5, Week2: 10})
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// LinkIdentity
// ─────────────────────────────────────────────────────────────────────────────

func TestLinkIdentity(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	_, err := newRecordHandler(repo, now).Handle(ctx, RecordSubmissionCommand{ScopeID: guild, ParticipantID: "Ann's iPhone", StepCount: 100, Source: competition.SourceDeviceAPI})
	require.NoError(t, err)

	h := NewLinkIdentityHandler(repo).WithClock(fixedClock(now))

	res, err := h.Handle(ctx, LinkIdentityCommand{ScopeID: guild, ChatUserID: "chat-1", DeviceName: "Ann's iPhone"})
	require.NoError(t, err)
	assert.True(t, res.Linked)
	assert.Equal(t, 100, res.Participant.CumulativeSteps)

	again, err := h.Handle(ctx, LinkIdentityCommand{ScopeID: guild, ChatUserID: "chat-1", DeviceName: "Ann's iPhone"})
	require.NoError(t, err)
	assert.False(t, again.Linked)
	assert.Equal(t, "Ann's iPhone", again.AlreadyLinkedTo)

	_, err = h.Handle(ctx, LinkIdentityCommand{ScopeID: guild, ChatUserID: "chat-2", DeviceName: "Ann's iPhone"})
	assert.ErrorIs(t, err, shared.ErrDeviceLinked)

	_, err = h.Handle(ctx, LinkIdentityCommand{ScopeID: guild, ChatUserID: "chat-2", DeviceName: "ghost"})
	assert.ErrorIs(t, err, shared.ErrDeviceNotFound)

	_, err = h.Handle(ctx, LinkIdentityCommand{ScopeID: guild, ChatUserID: "chat-2", DeviceName: "discord_7"})
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// ConfigureCompetition
// ─────────────────────────────────────────────────────────────────────────────

func TestStartCompetition_AnchorsToNextTrigger(t *testing.T) {
	repo := memory.NewRepository()
	h := NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(fixedClock(now))

	res, err := h.Start(context.Background(), StartCompetitionCommand{ScopeID: guild, ChannelID: "chan-1"})
	require.NoError(t, err)

	anchor, ok := res.Config.Anchor()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.January, 21, 23, 59, 0, 0, time.UTC), anchor)
	assert.Equal(t, "chan-1", res.Config.PostingChannelRef)
	require.NotNil(t, res.NextPost)
}

func TestSetChannel_KeepsAnchor(t *testing.T) {
	repo := startedRepo(t)
	h := NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(fixedClock(now))

	res, err := h.SetChannel(context.Background(), SetChannelCommand{ScopeID: guild, ChannelID: "chan-2"})
	require.NoError(t, err)
	assert.Equal(t, "chan-2", res.Config.PostingChannelRef)
	_, ok := res.Config.Anchor()
	assert.True(t, ok)

	_, err = h.SetChannel(context.Background(), SetChannelCommand{ScopeID: guild, ChannelID: "  "})
	assert.True(t, shared.IsValidation(err))
}

func TestUpdateSchedule(t *testing.T) {
	repo := memory.NewRepository()
	h := NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(fixedClock(now))

	bad := schedule.DefaultConfig()
	bad.Hour = 24
	_, err := h.UpdateSchedule(context.Background(), UpdateScheduleCommand{ScopeID: guild, Schedule: bad})
	assert.ErrorIs(t, err, shared.ErrInvalidHour)

	disabled := schedule.DefaultConfig()
	disabled.Enabled = false
	res, err := h.UpdateSchedule(context.Background(), UpdateScheduleCommand{ScopeID: guild, Schedule: disabled})
	require.NoError(t, err)
	assert.Nil(t, res.NextPost)

	stored, err := repo.GetCompetitionConfig(context.Background(), guild)
	require.NoError(t, err)
	assert.False(t, stored.Schedule.Enabled)
}
