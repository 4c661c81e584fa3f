// Package discord implements the Discord slash command front end of the
// step battle: command routing, guild checks, interaction handling and the
// channel announcer used by scheduled posts.
package discord

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/internal/interface/discord/handler"
	"github.com/stepbattle/stepbattle/internal/interface/discord/middleware"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// CommandPolicy describes who may run a command and where.
type CommandPolicy struct {
	// AdminOnly commands require the Administrator permission.
	AdminOnly bool

	// ChannelBound commands only run in the guild's configured channel.
	ChannelBound bool
}

// ChannelConfigs loads the competition configuration of a guild.
type ChannelConfigs interface {
	GetCompetitionConfig(ctx context.Context, scope shared.ScopeID) (*competition.CompetitionConfig, error)
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Logger *logger.Logger

	// RateLimiter is optional; nil disables per-user limiting.
	RateLimiter *middleware.RateLimiter

	// Recovery is optional; nil uses the default recovery.
	Recovery *middleware.Recovery
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes slash commands to handlers after the guild, permission and channel
// checks pass.
// ══════════════════════════════════════════════════════════════════════════════

type route struct {
	handler      handler.CommandHandler
	autocomplete handler.AutocompleteHandler
	policy       CommandPolicy
}

// Router routes interactions to registered handlers.
type Router struct {
	configs  ChannelConfigs
	limiter  *middleware.RateLimiter
	recovery *middleware.Recovery
	log      *logger.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// NewRouter creates a new router.
func NewRouter(configs ChannelConfigs, cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	recovery := cfg.Recovery
	if recovery == nil {
		rc := middleware.DefaultRecoveryConfig()
		rc.Logger = log
		recovery = middleware.NewRecovery(rc)
	}
	return &Router{
		configs:  configs,
		limiter:  cfg.RateLimiter,
		recovery: recovery,
		log:      log.WithComponent("discord_router"),
		routes:   make(map[string]route),
	}
}

// Register binds a handler to a command name. A handler that also implements
// handler.AutocompleteHandler serves autocomplete for that command.
func (r *Router) Register(name string, h handler.CommandHandler, policy CommandPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := route{handler: h, policy: policy}
	if ac, ok := h.(handler.AutocompleteHandler); ok {
		rt.autocomplete = ac
	}
	r.routes[strings.ToLower(name)] = rt
}

// Commands returns the registered command names, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) lookup(name string) (route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[strings.ToLower(name)]
	return rt, ok
}

// Dispatch runs the command and always returns a reply to send.
func (r *Router) Dispatch(ctx context.Context, cmd handler.CommandContext) *handler.Reply {
	log := r.log.With(logger.Command(cmd.Command), logger.ChatUserID(cmd.UserID), logger.ScopeID(cmd.GuildID))

	if r.limiter != nil {
		if res := r.limiter.Check(cmd.UserID); !res.Allowed {
			log.Warn("command rate limited", logger.Duration("retry_after", res.RetryAfter), logger.Bool("banned", res.IsBanned))
			return handler.Private(presenter.RateLimited(res.RetryAfter))
		}
	}

	rt, ok := r.lookup(cmd.Command)
	if !ok {
		log.Warn("unknown command")
		return handler.Private(presenter.GenericFail)
	}

	if cmd.GuildID == "" {
		return handler.Private(presenter.GuildOnly)
	}
	if rt.policy.AdminOnly && !cmd.IsAdmin {
		return handler.Private(presenter.AdminOnly)
	}
	if rt.policy.ChannelBound {
		if reply := r.checkChannel(ctx, cmd, log); reply != nil {
			return reply
		}
	}

	var reply *handler.Reply
	_, err := r.recovery.Run(cmd.UserID, cmd.Command, func() error {
		var herr error
		reply, herr = rt.handler.Handle(ctx, cmd)
		return herr
	})
	if err != nil {
		var panicErr *middleware.PanicError
		if !errors.As(err, &panicErr) {
			log.Error("command failed", logger.Err(err))
		}
		return handler.Private(presenter.GenericFail)
	}
	if reply == nil {
		return handler.Private(presenter.GenericFail)
	}
	return reply
}

// checkChannel returns a reply when the command is used outside the
// configured channel, or nil when it may run.
func (r *Router) checkChannel(ctx context.Context, cmd handler.CommandContext, log *logger.Logger) *handler.Reply {
	cfg, err := r.configs.GetCompetitionConfig(ctx, shared.ScopeID(cmd.GuildID))
	switch {
	case shared.IsNotFound(err):
		return handler.Private(presenter.SetupHint)
	case err != nil:
		log.Error("failed to load channel config", logger.Err(err))
		return handler.Private(presenter.GenericFail)
	}
	if cfg == nil || cfg.PostingChannelRef == "" {
		return handler.Private(presenter.SetupHint)
	}
	if cfg.PostingChannelRef != cmd.ChannelID {
		return handler.Private(presenter.WrongChannel(cfg.PostingChannelRef))
	}
	return nil
}

// Autocomplete returns choices for the focused option. Failures yield an
// empty list.
func (r *Router) Autocomplete(ctx context.Context, cmd handler.CommandContext) []*discordgo.ApplicationCommandOptionChoice {
	rt, ok := r.lookup(cmd.Command)
	if !ok || rt.autocomplete == nil || cmd.GuildID == "" {
		return nil
	}
	typed := ""
	if opt, ok := cmd.Options.Focused(); ok {
		if s, ok := opt.Value.(string); ok {
			typed = s
		}
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	_, err := r.recovery.Run(cmd.UserID, cmd.Command, func() error {
		var aerr error
		choices, aerr = rt.autocomplete.Autocomplete(ctx, cmd, typed)
		return aerr
	})
	if err != nil {
		r.log.Warn("autocomplete failed", logger.Command(cmd.Command), logger.Err(err))
		return nil
	}
	return choices
}
