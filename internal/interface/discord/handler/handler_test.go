package handler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/memory"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

const guild = "guild-1"

// Wednesday 2024-01-17 20:00 UTC.
var now = time.Date(2024, time.January, 17, 20, 0, 0, 0, time.UTC)

func clock(t time.Time) command.Clock { return func() time.Time { return t } }

func cmdCtx(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) CommandContext {
	return CommandContext{
		Command:     name,
		GuildID:     guild,
		ChannelID:   "chan-1",
		UserID:      "42",
		Username:    "ann",
		DisplayName: "Ann",
		Options:     NewOptions(opts),
	}
}

func opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Value: value}
}

func recordDevice(t *testing.T, repo *memory.Repository, device string, steps int) {
	t.Helper()
	_, err := command.NewRecordSubmissionHandler(repo).WithClock(clock(now)).Handle(context.Background(),
		command.RecordSubmissionCommand{ScopeID: guild, ParticipantID: device, StepCount: steps, Source: competition.SourceDeviceAPI})
	require.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

func TestOptions(t *testing.T) {
	o := NewOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		opt("week1", float64(1200)),
		opt("frac", 1.5),
		opt("name", "phone"),
		{Name: "typed", Value: "ph", Focused: true},
		nil,
	})

	n, ok := o.Int("week1")
	assert.True(t, ok)
	assert.Equal(t, 1200, n)

	_, ok = o.Int("frac")
	assert.False(t, ok)
	_, ok = o.Int("missing")
	assert.False(t, ok)

	s, ok := o.String("name")
	assert.True(t, ok)
	assert.Equal(t, "phone", s)

	focused, ok := o.Focused()
	require.True(t, ok)
	assert.Equal(t, "typed", focused.Name)
}

// ─────────────────────────────────────────────────────────────────────────────
// Admin commands
// ─────────────────────────────────────────────────────────────────────────────

func TestSetChannel(t *testing.T) {
	repo := memory.NewRepository()
	configure := command.NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(clock(now))
	h := NewSetChannelHandler(configure)

	reply, err := h.Handle(context.Background(), cmdCtx("setchannel", opt("channel", "chan-9")))
	require.NoError(t, err)
	assert.True(t, reply.Ephemeral)
	assert.Equal(t, presenter.ChannelSet("chan-9"), reply.Content)
	assert.Equal(t, presenter.ChannelActivated, reply.Announcement)
	assert.Equal(t, "chan-9", reply.AnnounceChannel)

	cfg, err := repo.GetCompetitionConfig(context.Background(), guild)
	require.NoError(t, err)
	assert.Equal(t, "chan-9", cfg.PostingChannelRef)

	reply, err = h.Handle(context.Background(), cmdCtx("setchannel"))
	require.NoError(t, err)
	assert.Equal(t, "chan-1", reply.AnnounceChannel)
}

func TestStartStepping(t *testing.T) {
	repo := memory.NewRepository()
	configure := command.NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(clock(now))

	reply, err := NewStartSteppingHandler(configure).Handle(context.Background(), cmdCtx("startstepping"))
	require.NoError(t, err)
	assert.True(t, reply.Ephemeral)
	assert.Equal(t, presenter.Started("chan-1"), reply.Content)
	assert.Equal(t, "chan-1", reply.AnnounceChannel)

	anchor := time.Date(2024, time.January, 21, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, presenter.StartAnnouncement(anchor), reply.Announcement)
}

// ─────────────────────────────────────────────────────────────────────────────
// /link
// ─────────────────────────────────────────────────────────────────────────────

func TestLink(t *testing.T) {
	repo := memory.NewRepository()
	recordDevice(t, repo, "Ann's iPhone", 1234)
	recordDevice(t, repo, "Bob's Watch", 99)

	h := NewLinkHandler(command.NewLinkIdentityHandler(repo), query.NewListLinkCandidatesHandler(repo))
	ctx := context.Background()

	reply, err := h.Handle(ctx, cmdCtx("link", opt("name", "Ann's iPhone")))
	require.NoError(t, err)
	require.Len(t, reply.Embeds, 1)
	assert.False(t, reply.Ephemeral)
	assert.Contains(t, reply.Embeds[0].Description, "Ann's iPhone")
	assert.Equal(t, "1,234 steps", reply.Embeds[0].Fields[0].Value)

	reply, err = h.Handle(ctx, cmdCtx("link", opt("name", "Ann's iPhone")))
	require.NoError(t, err)
	assert.Equal(t, presenter.AlreadyLinked("Ann's iPhone"), reply.Content)

	other := cmdCtx("link", opt("name", "Ann's iPhone"))
	other.UserID = "77"
	reply, err = h.Handle(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, presenter.DeviceTaken("Ann's iPhone"), reply.Content)

	other.Options = NewOptions([]*discordgo.ApplicationCommandInteractionDataOption{opt("name", "ghost")})
	reply, err = h.Handle(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, presenter.DeviceNotFound("ghost"), reply.Content)
	assert.True(t, reply.Ephemeral)
}

func TestLinkAutocomplete(t *testing.T) {
	repo := memory.NewRepository()
	recordDevice(t, repo, "Ann's iPhone", 1234)
	recordDevice(t, repo, "Bob's Watch", 99)

	h := NewLinkHandler(command.NewLinkIdentityHandler(repo), query.NewListLinkCandidatesHandler(repo))

	choices, err := h.Autocomplete(context.Background(), cmdCtx("link"), "watch")
	require.NoError(t, err)
	require.Len(t, choices, 1)
	assert.Equal(t, "Bob's Watch", choices[0].Value)

	choices, err = h.Autocomplete(context.Background(), cmdCtx("link"), "")
	require.NoError(t, err)
	assert.Len(t, choices, 2)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}

// ─────────────────────────────────────────────────────────────────────────────
// /submitsteps
// ─────────────────────────────────────────────────────────────────────────────

func newSubmitHandler(repo *memory.Repository) *SubmitStepsHandler {
	record := command.NewRecordSubmissionHandler(repo).WithClock(clock(now))
	submit := command.NewSubmitManualStepsHandler(repo, record).WithClock(clock(now))
	return NewSubmitStepsHandler(submit, presenter.NewRoaster(func(int) int { return 0 }))
}

func TestSubmitSteps_NotStarted(t *testing.T) {
	h := newSubmitHandler(memory.NewRepository())

	reply, err := h.Handle(context.Background(), cmdCtx("submitsteps", opt("week1", float64(10)), opt("week2", float64(20))))
	require.NoError(t, err)
	assert.Equal(t, presenter.NotStarted, reply.Content)
	assert.True(t, reply.Ephemeral)
}

func TestSubmitSteps_BeforeFirstPeriod(t *testing.T) {
	repo := memory.NewRepository()
	cfg, err := competition.NewCompetitionConfig(guild, schedule.DefaultConfig(), now)
	require.NoError(t, err)
	// Первый период начинается за 13 дней до якоря, то есть через 7 дней от now.
	require.NoError(t, cfg.Start("chan-1", now.AddDate(0, 0, 20), now))
	require.NoError(t, repo.SaveCompetitionConfig(context.Background(), cfg))

	reply, err := newSubmitHandler(repo).Handle(context.Background(),
		cmdCtx("submitsteps", opt("week1", float64(10)), opt("week2", float64(20))))
	require.NoError(t, err)
	assert.Equal(t, presenter.NotOpenYet, reply.Content)
	assert.True(t, reply.Ephemeral)
}

func TestSubmitSteps_RecordsAndRoasts(t *testing.T) {
	repo := memory.NewRepository()
	_, err := command.NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()).WithClock(clock(now.AddDate(0, 0, -3))).
		Start(context.Background(), command.StartCompetitionCommand{ScopeID: guild, ChannelID: "chan-1"})
	require.NoError(t, err)

	reply, err := newSubmitHandler(repo).Handle(context.Background(),
		cmdCtx("submitsteps", opt("week1", float64(40000)), opt("week2", float64(30000))))
	require.NoError(t, err)
	assert.False(t, reply.Ephemeral)
	assert.Equal(t, presenter.Roasts()[0], reply.Content)

	p, err := repo.GetParticipant(context.Background(), guild, "discord_42")
	require.NoError(t, err)
	assert.Equal(t, 70000, p.CumulativeSteps)
	assert.Equal(t, "Ann", p.DisplayName)
}

func TestSubmitSteps_InvalidWeeks(t *testing.T) {
	h := newSubmitHandler(memory.NewRepository())

	for _, c := range []CommandContext{
		cmdCtx("submitsteps", opt("week1", float64(10))),
		cmdCtx("submitsteps", opt("week1", float64(-1)), opt("week2", float64(20))),
		cmdCtx("submitsteps", opt("week1", 2.5), opt("week2", float64(20))),
	} {
		reply, err := h.Handle(context.Background(), c)
		require.NoError(t, err)
		assert.True(t, reply.Ephemeral)
		assert.Contains(t, reply.Content, "non-negative")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Info commands
// ─────────────────────────────────────────────────────────────────────────────

func TestLeaderboard(t *testing.T) {
	repo := memory.NewRepository()
	membership := memory.NewMembership()
	h := NewLeaderboardHandler(query.NewGetLeaderboardHandler(repo, membership), nil)
	ctx := context.Background()

	reply, err := h.Handle(ctx, cmdCtx("leaderboard"))
	require.NoError(t, err)
	assert.True(t, reply.Ephemeral)
	assert.Equal(t, presenter.EmptyLeaderboardText, reply.Content)

	recordDevice(t, repo, "phone", 5000)
	_, err = command.NewLinkIdentityHandler(repo).WithClock(clock(now)).Handle(ctx,
		command.LinkIdentityCommand{ScopeID: guild, ChatUserID: "42", DeviceName: "phone"})
	require.NoError(t, err)
	membership.Add(guild, competition.Member{ChatIdentity: "42", DisplayName: "Ann"})

	reply, err = h.Handle(ctx, cmdCtx("leaderboard"))
	require.NoError(t, err)
	require.Len(t, reply.Embeds, 1)
	assert.False(t, reply.Ephemeral)
	assert.Contains(t, reply.Embeds[0].Description, "**Ann** · 5,000 steps")
}

func TestSchedule(t *testing.T) {
	repo := memory.NewRepository()
	h := NewScheduleHandler(query.NewGetPostingScheduleHandler(repo, schedule.DefaultConfig()))

	reply, err := h.Handle(context.Background(), cmdCtx("schedule"))
	require.NoError(t, err)
	assert.False(t, reply.Ephemeral)
	assert.Contains(t, reply.Content, "Next leaderboard")
}

func TestGap_NoData(t *testing.T) {
	repo := memory.NewRepository()
	h := NewGapHandler(query.NewGetGapTrendHandler(repo))

	reply, err := h.Handle(context.Background(), cmdCtx("gap"))
	require.NoError(t, err)
	assert.True(t, reply.Ephemeral)
	assert.Equal(t, presenter.NoGapData, reply.Content)
}
