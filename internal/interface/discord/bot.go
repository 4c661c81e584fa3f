package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	infradiscord "github.com/stepbattle/stepbattle/internal/infrastructure/discord"
	"github.com/stepbattle/stepbattle/internal/interface/discord/handler"
	"github.com/stepbattle/stepbattle/internal/interface/discord/middleware"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Session is the part of *discordgo.Session the bot uses.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// BotConfig contains configuration for the bot.
type BotConfig struct {
	// ClientID is the application id. Empty uses the id from the Ready event.
	ClientID string

	// GuildID registers commands on one guild instead of globally.
	GuildID string

	// RegisterCommands overwrites the slash command set on Ready.
	RegisterCommands bool

	// GapTrend registers /gap.
	GapTrend bool

	// MaxConcurrentInteractions bounds interactions handled at once.
	MaxConcurrentInteractions int

	// InteractionTimeout bounds one handler; Discord drops replies after 3s.
	InteractionTimeout time.Duration

	// GracefulShutdownTimeout is the timeout for graceful shutdown.
	GracefulShutdownTimeout time.Duration

	RateLimit RateLimitSettings

	Logger *logger.Logger
}

// RateLimitSettings tunes the per-user command limiter.
type RateLimitSettings struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	rl := middleware.DefaultRateLimitConfig()
	return BotConfig{
		RegisterCommands:          true,
		GapTrend:                  true,
		MaxConcurrentInteractions: 64,
		InteractionTimeout:        2500 * time.Millisecond,
		GracefulShutdownTimeout:   10 * time.Second,
		RateLimit: RateLimitSettings{
			Enabled:           true,
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	Configs ChannelConfigs
	Poster  Poster

	// Commands
	Configure   *command.ConfigureCompetitionHandler
	Link        *command.LinkIdentityHandler
	SubmitSteps *command.SubmitManualStepsHandler

	// Queries
	Leaderboard    *query.GetLeaderboardHandler
	Schedule       *query.GetPostingScheduleHandler
	GapTrend       *query.GetGapTrendHandler
	LinkCandidates *query.ListLinkCandidatesHandler

	// Roaster is optional.
	Roaster *presenter.Roaster
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot receives interactions from the gateway and answers them.
type Bot struct {
	config  BotConfig
	session Session
	router  *Router
	poster  Poster
	limiter *middleware.RateLimiter
	log     *logger.Logger

	running   bool
	runningMu sync.RWMutex
	stopCh    chan struct{}
	sem       chan struct{}
	wg        sync.WaitGroup
	removers  []func()

	stats *BotStats
}

// BotStats holds runtime statistics.
type BotStats struct {
	mu                   sync.RWMutex
	StartedAt            time.Time
	InteractionsReceived int64
	InteractionsHandled  int64
	ErrorsCount          int64
	CommandsCount        map[string]int64
}

// NewBot creates a bot with all handlers registered.
func NewBot(session Session, config BotConfig, deps BotDependencies) (*Bot, error) {
	if session == nil {
		return nil, errors.New("discord session is required")
	}
	if deps.Configs == nil || deps.Poster == nil {
		return nil, errors.New("channel configs and poster are required")
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.MaxConcurrentInteractions <= 0 {
		config.MaxConcurrentInteractions = DefaultBotConfig().MaxConcurrentInteractions
	}
	if config.InteractionTimeout <= 0 {
		config.InteractionTimeout = DefaultBotConfig().InteractionTimeout
	}

	var limiter *middleware.RateLimiter
	if config.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		if config.RateLimit.RequestsPerMinute > 0 {
			rl.RequestsPerMinute = config.RateLimit.RequestsPerMinute
		}
		if config.RateLimit.BurstSize > 0 {
			rl.BurstSize = config.RateLimit.BurstSize
		}
		limiter = middleware.NewRateLimiter(rl)
	}

	rc := middleware.DefaultRecoveryConfig()
	rc.Logger = config.Logger

	router := NewRouter(deps.Configs, RouterConfig{
		Logger:      config.Logger,
		RateLimiter: limiter,
		Recovery:    middleware.NewRecovery(rc),
	})

	router.Register(CmdSetChannel, handler.NewSetChannelHandler(deps.Configure), PolicyFor(CmdSetChannel))
	router.Register(CmdStartStepping, handler.NewStartSteppingHandler(deps.Configure), PolicyFor(CmdStartStepping))
	router.Register(CmdLink, handler.NewLinkHandler(deps.Link, deps.LinkCandidates), PolicyFor(CmdLink))
	router.Register(CmdSubmitSteps, handler.NewSubmitStepsHandler(deps.SubmitSteps, deps.Roaster), PolicyFor(CmdSubmitSteps))
	router.Register(CmdLeaderboard, handler.NewLeaderboardHandler(deps.Leaderboard, nil), PolicyFor(CmdLeaderboard))
	router.Register(CmdSchedule, handler.NewScheduleHandler(deps.Schedule), PolicyFor(CmdSchedule))
	if config.GapTrend && deps.GapTrend != nil {
		router.Register(CmdGap, handler.NewGapHandler(deps.GapTrend), PolicyFor(CmdGap))
	} else {
		config.GapTrend = false
	}

	return &Bot{
		config:  config,
		session: session,
		router:  router,
		poster:  deps.Poster,
		limiter: limiter,
		log:     config.Logger.WithComponent("discord_bot"),
		stopCh:  make(chan struct{}),
		sem:     make(chan struct{}, config.MaxConcurrentInteractions),
		stats:   &BotStats{CommandsCount: make(map[string]int64)},
	}, nil
}

// Router returns the command router.
func (b *Bot) Router() *Router {
	return b.router
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start registers gateway handlers and opens the connection.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	b.stats.mu.Lock()
	b.stats.StartedAt = time.Now()
	b.stats.mu.Unlock()

	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onInteraction),
	)

	if err := b.session.Open(); err != nil {
		b.runningMu.Lock()
		b.running = false
		b.runningMu.Unlock()
		return fmt.Errorf("open discord gateway: %w", err)
	}

	b.log.Info("discord bot started",
		logger.Bool("guild_scoped", b.config.GuildID != ""),
		logger.Any("commands", b.router.Commands()),
	)
	return nil
}

// Stop waits for in-flight interactions and closes the gateway.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	b.log.Info("stopping discord bot")
	close(b.stopCh)
	for _, remove := range b.removers {
		remove()
	}
	if b.limiter != nil {
		b.limiter.Stop()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timeout := b.config.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultBotConfig().GracefulShutdownTimeout
	}
	select {
	case <-done:
		b.log.Info("all interactions completed gracefully")
	case <-time.After(timeout):
		b.log.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.log.Warn("context cancelled during shutdown")
	}

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return ctx.Err()
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY EVENTS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	appID := b.config.ClientID
	if appID == "" && r != nil && r.User != nil {
		appID = r.User.ID
	}
	if err := b.RegisterCommands(appID); err != nil {
		b.log.Error("failed to register slash commands", logger.Err(err))
	}
}

func (b *Bot) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-b.stopCh:
		return
	}
	b.wg.Add(1)
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), b.config.InteractionTimeout)
	defer cancel()
	if err := b.HandleInteraction(ctx, ic.Interaction); err != nil {
		b.log.Error("interaction failed", logger.Err(err))
	}
}

// RegisterCommands overwrites the application's slash commands.
func (b *Bot) RegisterCommands(appID string) error {
	if !b.config.RegisterCommands {
		return nil
	}
	if appID == "" {
		return errors.New("application id is unknown")
	}
	cmds := ApplicationCommands(b.config.GapTrend)
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.config.GuildID, cmds)
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	b.log.Info("slash commands registered",
		logger.Int("count", len(registered)),
		logger.String("guild_id", b.config.GuildID),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTION HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleInteraction answers one interaction.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) error {
	b.stats.mu.Lock()
	b.stats.InteractionsReceived++
	b.stats.mu.Unlock()

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		err = b.handleCommand(ctx, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		err = b.handleAutocomplete(ctx, i)
	default:
		return nil
	}

	b.stats.mu.Lock()
	if err != nil {
		b.stats.ErrorsCount++
	} else {
		b.stats.InteractionsHandled++
	}
	b.stats.mu.Unlock()
	return err
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.Interaction) error {
	cmd := commandContext(i)
	start := time.Now()

	reply := b.router.Dispatch(ctx, cmd)

	b.stats.mu.Lock()
	b.stats.CommandsCount[cmd.Command]++
	b.stats.mu.Unlock()

	data := &discordgo.InteractionResponseData{
		Content: reply.Content,
		Embeds:  reply.Embeds,
	}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		return fmt.Errorf("respond to /%s: %w", cmd.Command, err)
	}

	b.log.Debug("command handled",
		logger.Command(cmd.Command),
		logger.ChatUserID(cmd.UserID),
		logger.ScopeID(cmd.GuildID),
		logger.Latency(time.Since(start)),
	)

	if reply.Announcement != "" && reply.AnnounceChannel != "" {
		b.announce(ctx, i, reply)
	}
	return nil
}

// announce posts a command's channel announcement. A failure is reported to
// the invoker only.
func (b *Bot) announce(ctx context.Context, i *discordgo.Interaction, reply *handler.Reply) {
	err := b.poster.Send(ctx, reply.AnnounceChannel, &discordgo.MessageSend{Content: reply.Announcement})
	if err == nil {
		return
	}
	b.log.Warn("announcement failed", logger.String("channel", reply.AnnounceChannel), logger.Err(err))
	if _, ferr := b.session.FollowupMessageCreate(i, false, &discordgo.WebhookParams{
		Content: presenter.AnnouncementFailed(reply.AnnounceChannel),
		Flags:   discordgo.MessageFlagsEphemeral,
	}); ferr != nil {
		b.log.Warn("announcement failure follow-up failed", logger.Err(ferr))
	}
}

func (b *Bot) handleAutocomplete(ctx context.Context, i *discordgo.Interaction) error {
	choices := b.router.Autocomplete(ctx, commandContext(i))
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	if err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		return fmt.Errorf("respond to autocomplete: %w", err)
	}
	return nil
}

// commandContext converts an interaction into the handler's view of it.
func commandContext(i *discordgo.Interaction) handler.CommandContext {
	data := i.ApplicationCommandData()
	cmd := handler.CommandContext{
		Command:   data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   handler.NewOptions(data.Options),
	}
	switch {
	case i.Member != nil:
		cmd.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
		cmd.DisplayName = infradiscord.DisplayName(i.Member)
		if i.Member.User != nil {
			cmd.UserID = i.Member.User.ID
			cmd.Username = i.Member.User.Username
		}
	case i.User != nil:
		cmd.UserID = i.User.ID
		cmd.Username = i.User.Username
		cmd.DisplayName = i.User.GlobalName
	}
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// GetStats returns current bot statistics.
func (b *Bot) GetStats() map[string]interface{} {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	commands := make(map[string]int64, len(b.stats.CommandsCount))
	for k, v := range b.stats.CommandsCount {
		commands[k] = v
	}
	var uptime time.Duration
	if !b.stats.StartedAt.IsZero() {
		uptime = time.Since(b.stats.StartedAt)
	}

	return map[string]interface{}{
		"started_at":            b.stats.StartedAt,
		"uptime":                uptime.String(),
		"interactions_received": b.stats.InteractionsReceived,
		"interactions_handled":  b.stats.InteractionsHandled,
		"errors_count":          b.stats.ErrorsCount,
		"commands_count":        commands,
		"running":               b.IsRunning(),
	}
}
