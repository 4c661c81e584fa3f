package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURE COMPETITION COMMANDS
// Administrative changes to a scope's CompetitionConfig: posting channel,
// start date, and posting schedule. A missing config is created on first use
// with the process-wide default schedule.
// ══════════════════════════════════════════════════════════════════════════════

// SetChannelCommand sets the posting channel.
type SetChannelCommand struct {
	ScopeID   string
	ChannelID string
}

// StartCompetitionCommand starts (or restarts) the competition from the
// channel it was issued in.
type StartCompetitionCommand struct {
	ScopeID   string
	ChannelID string
}

// UpdateScheduleCommand replaces the posting schedule.
type UpdateScheduleCommand struct {
	ScopeID  string
	Schedule schedule.Config
}

// ConfigureCompetitionResult carries the saved config.
type ConfigureCompetitionResult struct {
	Config *competition.CompetitionConfig

	// NextPost is the first qualifying post after the change, if any.
	NextPost *schedule.Occurrence
}

// ConfigureCompetitionHandler handles the three configuration commands.
type ConfigureCompetitionHandler struct {
	repo     competition.Repository
	defaults schedule.Config
	calc     *schedule.Calculator
	now      Clock
}

// NewConfigureCompetitionHandler creates a new handler.
func NewConfigureCompetitionHandler(repo competition.Repository, defaults schedule.Config) *ConfigureCompetitionHandler {
	return &ConfigureCompetitionHandler{
		repo:     repo,
		defaults: defaults,
		calc:     schedule.NewCalculator(),
		now:      systemClock,
	}
}

// WithClock replaces the handler clock.
func (h *ConfigureCompetitionHandler) WithClock(now Clock) *ConfigureCompetitionHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// SetChannel stores the posting channel without touching the start date.
func (h *ConfigureCompetitionHandler) SetChannel(ctx context.Context, cmd SetChannelCommand) (*ConfigureCompetitionResult, error) {
	now := h.now().UTC()
	cfg, err := h.load(ctx, cmd.ScopeID, now)
	if err != nil {
		return nil, fmt.Errorf("set_channel: %w", err)
	}
	if err := cfg.SetChannel(cmd.ChannelID, now); err != nil {
		return nil, fmt.Errorf("set_channel: %w", err)
	}
	return h.save(ctx, cfg, now)
}

// Start sets the channel and anchors the competition to the next weekly
// trigger instant of the scope's schedule strictly after now.
func (h *ConfigureCompetitionHandler) Start(ctx context.Context, cmd StartCompetitionCommand) (*ConfigureCompetitionResult, error) {
	now := h.now().UTC()
	cfg, err := h.load(ctx, cmd.ScopeID, now)
	if err != nil {
		return nil, fmt.Errorf("start_competition: %w", err)
	}
	anchor := h.calc.NextTrigger(cfg.Schedule, now)
	if err := cfg.Start(cmd.ChannelID, anchor, now); err != nil {
		return nil, fmt.Errorf("start_competition: %w", err)
	}
	return h.save(ctx, cfg, now)
}

// UpdateSchedule validates and stores a new schedule.
func (h *ConfigureCompetitionHandler) UpdateSchedule(ctx context.Context, cmd UpdateScheduleCommand) (*ConfigureCompetitionResult, error) {
	now := h.now().UTC()
	cfg, err := h.load(ctx, cmd.ScopeID, now)
	if err != nil {
		return nil, fmt.Errorf("update_schedule: %w", err)
	}
	if cmd.Schedule.IntervalMode == "" {
		cmd.Schedule.IntervalMode = schedule.IntervalModeMonth
	}
	if err := cfg.UpdateSchedule(cmd.Schedule, now); err != nil {
		return nil, fmt.Errorf("update_schedule: %w", err)
	}
	return h.save(ctx, cfg, now)
}

func (h *ConfigureCompetitionHandler) load(ctx context.Context, rawScope string, now time.Time) (*competition.CompetitionConfig, error) {
	scope, err := shared.NewScopeID(strings.TrimSpace(rawScope))
	if err != nil {
		return nil, err
	}
	cfg, err := h.repo.GetCompetitionConfig(ctx, scope)
	if err == nil {
		return cfg, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}
	return competition.NewCompetitionConfig(scope, h.defaults, now)
}

func (h *ConfigureCompetitionHandler) save(ctx context.Context, cfg *competition.CompetitionConfig, now time.Time) (*ConfigureCompetitionResult, error) {
	if err := h.repo.SaveCompetitionConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	res := &ConfigureCompetitionResult{Config: cfg}
	if occ, ok := h.calc.Next(cfg.Schedule, now); ok {
		res.NextPost = &occ
	}
	return res, nil
}
