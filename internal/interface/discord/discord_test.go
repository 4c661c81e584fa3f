package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/memory"
	"github.com/stepbattle/stepbattle/internal/interface/discord/handler"
	"github.com/stepbattle/stepbattle/internal/interface/discord/middleware"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

const guild = "guild-1"

// ═══════════════════════════════════════════════════════════════════════════
// FAKES
// ═══════════════════════════════════════════════════════════════════════════

type fakeSession struct {
	mu         sync.Mutex
	responses  []*discordgo.InteractionResponse
	followups  []*discordgo.WebhookParams
	overwrites map[string][]*discordgo.ApplicationCommand
	handlers   int
	opened     bool
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{overwrites: make(map[string][]*discordgo.ApplicationCommand)}
}

func (s *fakeSession) AddHandler(interface{}) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers++
	return func() {}
}

func (s *fakeSession) Open() error  { s.opened = true; return nil }
func (s *fakeSession) Close() error { s.closed = true; return nil }

func (s *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *fakeSession) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followups = append(s.followups, data)
	return &discordgo.Message{}, nil
}

func (s *fakeSession) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overwrites[appID+"/"+guildID] = cmds
	return cmds, nil
}

func (s *fakeSession) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.responses)
	return s.responses[len(s.responses)-1]
}

type sentMessage struct {
	channel string
	msg     *discordgo.MessageSend
}

type fakePoster struct {
	err  error
	sent []sentMessage
}

func (p *fakePoster) Send(_ context.Context, channelID string, msg *discordgo.MessageSend) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{channel: channelID, msg: msg})
	return nil
}

func configuredRepo(t *testing.T, channel string) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	cfg, err := competition.NewCompetitionConfig(guild, schedule.DefaultConfig(), time.Now())
	require.NoError(t, err)
	cfg.PostingChannelRef = channel
	require.NoError(t, repo.SaveCompetitionConfig(context.Background(), cfg))
	return repo
}

func echo(text string) handler.CommandHandler {
	return handler.CommandHandlerFunc(func(context.Context, handler.CommandContext) (*handler.Reply, error) {
		return handler.Text(text), nil
	})
}

func member(ctx handler.CommandContext) handler.CommandContext {
	ctx.GuildID = guild
	ctx.ChannelID = "chan-1"
	ctx.UserID = "42"
	return ctx
}

// ═══════════════════════════════════════════════════════════════════════════
// ROUTER
// ═══════════════════════════════════════════════════════════════════════════

func TestRouter_Checks(t *testing.T) {
	repo := configuredRepo(t, "chan-1")
	r := NewRouter(repo, RouterConfig{})
	r.Register("admin", echo("admin ok"), CommandPolicy{AdminOnly: true})
	r.Register("bound", echo("bound ok"), CommandPolicy{ChannelBound: true})
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  handler.CommandContext
		want string
	}{
		{"unknown command", member(handler.CommandContext{Command: "nope"}), presenter.GenericFail},
		{"direct message", handler.CommandContext{Command: "bound", UserID: "42"}, presenter.GuildOnly},
		{"non-admin", member(handler.CommandContext{Command: "admin"}), presenter.AdminOnly},
		{"admin", member(handler.CommandContext{Command: "admin", IsAdmin: true}), "admin ok"},
		{"right channel", member(handler.CommandContext{Command: "bound"}), "bound ok"},
		{"case insensitive", member(handler.CommandContext{Command: "BOUND"}), "bound ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Dispatch(ctx, tt.cmd).Content)
		})
	}

	wrong := member(handler.CommandContext{Command: "bound"})
	wrong.ChannelID = "chan-2"
	reply := r.Dispatch(ctx, wrong)
	assert.Equal(t, presenter.WrongChannel("chan-1"), reply.Content)
	assert.True(t, reply.Ephemeral)
}

func TestRouter_SetupHintWithoutChannel(t *testing.T) {
	ctx := context.Background()

	r := NewRouter(memory.NewRepository(), RouterConfig{})
	r.Register("bound", echo("ok"), CommandPolicy{ChannelBound: true})
	assert.Equal(t, presenter.SetupHint, r.Dispatch(ctx, member(handler.CommandContext{Command: "bound"})).Content)

	r = NewRouter(configuredRepo(t, ""), RouterConfig{})
	r.Register("bound", echo("ok"), CommandPolicy{ChannelBound: true})
	assert.Equal(t, presenter.SetupHint, r.Dispatch(ctx, member(handler.CommandContext{Command: "bound"})).Content)
}

func TestRouter_HandlerFailuresBecomeGenericReplies(t *testing.T) {
	r := NewRouter(memory.NewRepository(), RouterConfig{})
	r.Register("boom", handler.CommandHandlerFunc(func(context.Context, handler.CommandContext) (*handler.Reply, error) {
		panic("boom")
	}), CommandPolicy{})
	r.Register("fail", handler.CommandHandlerFunc(func(context.Context, handler.CommandContext) (*handler.Reply, error) {
		return nil, errors.New("db down")
	}), CommandPolicy{})
	r.Register("empty", handler.CommandHandlerFunc(func(context.Context, handler.CommandContext) (*handler.Reply, error) {
		return nil, nil
	}), CommandPolicy{})

	for _, name := range []string{"boom", "fail", "empty"} {
		reply := r.Dispatch(context.Background(), member(handler.CommandContext{Command: name}))
		assert.Equal(t, presenter.GenericFail, reply.Content, name)
		assert.True(t, reply.Ephemeral, name)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	defer limiter.Stop()

	r := NewRouter(memory.NewRepository(), RouterConfig{RateLimiter: limiter})
	r.Register("ping", echo("pong"), CommandPolicy{})
	ctx := context.Background()

	assert.Equal(t, "pong", r.Dispatch(ctx, member(handler.CommandContext{Command: "ping"})).Content)
	reply := r.Dispatch(ctx, member(handler.CommandContext{Command: "ping"}))
	assert.Contains(t, reply.Content, "Too many commands")
	assert.True(t, reply.Ephemeral)
}

func TestRouter_Commands(t *testing.T) {
	r := NewRouter(memory.NewRepository(), RouterConfig{})
	r.Register("b", echo(""), CommandPolicy{})
	r.Register("a", echo(""), CommandPolicy{})
	assert.Equal(t, []string{"a", "b"}, r.Commands())
}

// ═══════════════════════════════════════════════════════════════════════════
// COMMAND DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════

func TestApplicationCommands(t *testing.T) {
	names := func(cmds []*discordgo.ApplicationCommand) []string {
		out := make([]string, 0, len(cmds))
		for _, c := range cmds {
			out = append(out, c.Name)
		}
		return out
	}

	without := ApplicationCommands(false)
	assert.NotContains(t, names(without), CmdGap)
	assert.Contains(t, names(ApplicationCommands(true)), CmdGap)

	for _, c := range without {
		switch c.Name {
		case CmdSetChannel, CmdStartStepping:
			require.NotNil(t, c.DefaultMemberPermissions)
			assert.Equal(t, int64(discordgo.PermissionAdministrator), *c.DefaultMemberPermissions)
			assert.True(t, PolicyFor(c.Name).AdminOnly)
		default:
			assert.True(t, PolicyFor(c.Name).ChannelBound, c.Name)
		}
		if c.Name == CmdLink {
			require.Len(t, c.Options, 1)
			assert.True(t, c.Options[0].Autocomplete)
		}
		if c.Name == CmdSubmitSteps {
			require.Len(t, c.Options, 2)
			for _, o := range c.Options {
				assert.True(t, o.Required)
				require.NotNil(t, o.MinValue)
				assert.Zero(t, *o.MinValue)
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// BOT
// ═══════════════════════════════════════════════════════════════════════════

type botEnv struct {
	repo    *memory.Repository
	session *fakeSession
	poster  *fakePoster
	bot     *Bot
}

func newBotEnv(t *testing.T, gap bool) *botEnv {
	t.Helper()
	repo := memory.NewRepository()
	membership := memory.NewMembership()
	record := command.NewRecordSubmissionHandler(repo)

	env := &botEnv{repo: repo, session: newFakeSession(), poster: &fakePoster{}}
	cfg := DefaultBotConfig()
	cfg.ClientID = "app-1"
	cfg.GuildID = guild
	cfg.GapTrend = gap
	cfg.RateLimit.Enabled = false

	bot, err := NewBot(env.session, cfg, BotDependencies{
		Configs:        repo,
		Poster:         env.poster,
		Configure:      command.NewConfigureCompetitionHandler(repo, schedule.DefaultConfig()),
		Link:           command.NewLinkIdentityHandler(repo),
		SubmitSteps:    command.NewSubmitManualStepsHandler(repo, record),
		Leaderboard:    query.NewGetLeaderboardHandler(repo, membership),
		Schedule:       query.NewGetPostingScheduleHandler(repo, schedule.DefaultConfig()),
		GapTrend:       query.NewGetGapTrendHandler(repo),
		LinkCandidates: query.NewListLinkCandidatesHandler(repo),
	})
	require.NoError(t, err)
	env.bot = bot
	return env
}

func interaction(kind discordgo.InteractionType, name string, admin bool, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	var perms int64
	if admin {
		perms = discordgo.PermissionAdministrator
	}
	return &discordgo.Interaction{
		Type:      kind,
		GuildID:   guild,
		ChannelID: "chan-1",
		Member: &discordgo.Member{
			Nick:        "Annie",
			Permissions: perms,
			User:        &discordgo.User{ID: "42", Username: "ann"},
		},
		Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func TestCommandContext(t *testing.T) {
	i := interaction(discordgo.InteractionApplicationCommand, "link", true,
		&discordgo.ApplicationCommandInteractionDataOption{Name: "name", Value: "phone"})

	cmd := commandContext(i)
	assert.Equal(t, "link", cmd.Command)
	assert.Equal(t, guild, cmd.GuildID)
	assert.Equal(t, "chan-1", cmd.ChannelID)
	assert.Equal(t, "42", cmd.UserID)
	assert.Equal(t, "ann", cmd.Username)
	assert.Equal(t, "Annie", cmd.DisplayName)
	assert.True(t, cmd.IsAdmin)
	name, _ := cmd.Options.String("name")
	assert.Equal(t, "phone", name)

	dm := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "9", Username: "dm", GlobalName: "Dee"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "leaderboard"},
	}
	cmd = commandContext(dm)
	assert.Empty(t, cmd.GuildID)
	assert.Equal(t, "9", cmd.UserID)
	assert.Equal(t, "Dee", cmd.DisplayName)
	assert.False(t, cmd.IsAdmin)
}

func TestBot_SetChannelAnnounces(t *testing.T) {
	env := newBotEnv(t, true)

	err := env.bot.HandleInteraction(context.Background(), interaction(discordgo.InteractionApplicationCommand, CmdSetChannel, true))
	require.NoError(t, err)

	resp := env.session.lastResponse(t)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, presenter.ChannelSet("chan-1"), resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	require.Len(t, env.poster.sent, 1)
	assert.Equal(t, "chan-1", env.poster.sent[0].channel)
	assert.Equal(t, presenter.ChannelActivated, env.poster.sent[0].msg.Content)
	assert.Empty(t, env.session.followups)
}

func TestBot_AnnouncementFailureIsReportedPrivately(t *testing.T) {
	env := newBotEnv(t, true)
	env.poster.err = errors.New("missing access")

	err := env.bot.HandleInteraction(context.Background(), interaction(discordgo.InteractionApplicationCommand, CmdSetChannel, true))
	require.NoError(t, err)

	require.Len(t, env.session.followups, 1)
	assert.Equal(t, presenter.AnnouncementFailed("chan-1"), env.session.followups[0].Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, env.session.followups[0].Flags)
}

func TestBot_NonAdminIsRejected(t *testing.T) {
	env := newBotEnv(t, true)

	require.NoError(t, env.bot.HandleInteraction(context.Background(),
		interaction(discordgo.InteractionApplicationCommand, CmdStartStepping, false)))
	assert.Equal(t, presenter.AdminOnly, env.session.lastResponse(t).Data.Content)
	assert.Empty(t, env.poster.sent)

	_, err := env.repo.GetCompetitionConfig(context.Background(), guild)
	assert.True(t, shared.IsNotFound(err))
}

func TestBot_PublicReplyHasNoFlags(t *testing.T) {
	env := newBotEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.bot.HandleInteraction(ctx, interaction(discordgo.InteractionApplicationCommand, CmdSetChannel, true)))

	require.NoError(t, env.bot.HandleInteraction(ctx, interaction(discordgo.InteractionApplicationCommand, CmdSchedule, false)))
	resp := env.session.lastResponse(t)
	assert.Contains(t, resp.Data.Content, "Next leaderboard")
	assert.Zero(t, resp.Data.Flags)

	stats := env.bot.GetStats()
	assert.Equal(t, int64(2), stats["interactions_handled"])
}

func TestBot_Autocomplete(t *testing.T) {
	env := newBotEnv(t, true)
	_, err := command.NewRecordSubmissionHandler(env.repo).Handle(context.Background(), command.RecordSubmissionCommand{
		ScopeID: guild, ParticipantID: "Ann's iPhone", StepCount: 10, Source: competition.SourceDeviceAPI,
	})
	require.NoError(t, err)

	i := interaction(discordgo.InteractionApplicationCommandAutocomplete, CmdLink, false,
		&discordgo.ApplicationCommandInteractionDataOption{Name: "name", Value: "iph", Focused: true})
	require.NoError(t, env.bot.HandleInteraction(context.Background(), i))

	resp := env.session.lastResponse(t)
	assert.Equal(t, discordgo.InteractionApplicationCommandAutocompleteResult, resp.Type)
	require.Len(t, resp.Data.Choices, 1)
	assert.Equal(t, "Ann's iPhone", resp.Data.Choices[0].Value)

	unknown := interaction(discordgo.InteractionApplicationCommandAutocomplete, "nope", false)
	require.NoError(t, env.bot.HandleInteraction(context.Background(), unknown))
	resp = env.session.lastResponse(t)
	assert.NotNil(t, resp.Data.Choices)
	assert.Empty(t, resp.Data.Choices)
}

func TestBot_RegisterCommands(t *testing.T) {
	env := newBotEnv(t, false)
	require.NoError(t, env.bot.RegisterCommands("app-1"))

	cmds := env.session.overwrites["app-1/"+guild]
	require.NotEmpty(t, cmds)
	for _, c := range cmds {
		assert.NotEqual(t, CmdGap, c.Name)
	}
	assert.NotContains(t, env.bot.Router().Commands(), CmdGap)

	assert.Error(t, env.bot.RegisterCommands(""))
}

func TestBot_Lifecycle(t *testing.T) {
	env := newBotEnv(t, true)
	ctx := context.Background()

	require.NoError(t, env.bot.Start(ctx))
	assert.True(t, env.bot.IsRunning())
	assert.True(t, env.session.opened)
	assert.Equal(t, 2, env.session.handlers)
	assert.Error(t, env.bot.Start(ctx))

	require.NoError(t, env.bot.Stop(ctx))
	assert.False(t, env.bot.IsRunning())
	assert.True(t, env.session.closed)
	require.NoError(t, env.bot.Stop(ctx))
}

// ═══════════════════════════════════════════════════════════════════════════
// ANNOUNCER
// ═══════════════════════════════════════════════════════════════════════════

func TestAnnouncer(t *testing.T) {
	poster := &fakePoster{}
	a := NewAnnouncer(poster)
	ctx := context.Background()

	require.NoError(t, a.AnnounceLeaderboard(ctx, "chan-1", &query.GetLeaderboardResult{}))
	require.NoError(t, a.AnnounceLeaderboard(ctx, "chan-1", &query.GetLeaderboardResult{
		Entries: []query.LeaderboardEntryDTO{{Rank: 1, DisplayName: "Ann", Steps: 10, IsLeader: true}},
	}))
	post := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	require.NoError(t, a.AnnounceReminder(ctx, "chan-1", post))

	require.Len(t, poster.sent, 3)
	assert.Equal(t, presenter.EmptyLeaderboardText, poster.sent[0].msg.Content)
	require.Len(t, poster.sent[1].msg.Embeds, 1)
	assert.Contains(t, poster.sent[1].msg.Embeds[0].Description, "**Ann**")
	assert.Equal(t, presenter.Reminder(post).Content, poster.sent[2].msg.Content)

	assert.Error(t, a.AnnounceLeaderboard(ctx, "", &query.GetLeaderboardResult{}))
	assert.Error(t, a.AnnounceReminder(ctx, "", post))
}
