package handler

import (
	"context"

	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLER
// /leaderboard - current standings of the guild.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardHandler handles /leaderboard.
type LeaderboardHandler struct {
	leaderboard *query.GetLeaderboardHandler
	presenter   *presenter.LeaderboardPresenter
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(leaderboard *query.GetLeaderboardHandler, p *presenter.LeaderboardPresenter) *LeaderboardHandler {
	if p == nil {
		p = presenter.NewLeaderboardPresenter()
	}
	return &LeaderboardHandler{leaderboard: leaderboard, presenter: p}
}

// Handle processes /leaderboard. An empty board is answered privately.
func (h *LeaderboardHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	res, err := h.leaderboard.Handle(ctx, query.GetLeaderboardQuery{ScopeID: cmd.GuildID})
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return Private(presenter.EmptyLeaderboardText), nil
	}
	return Embed(h.presenter.Embed(res)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GAP HANDLER
// /gap - how the invoker's gap to the rest of the guild moved between their
// two most recent submission days.
// ══════════════════════════════════════════════════════════════════════════════

// GapHandler handles /gap.
type GapHandler struct {
	gap *query.GetGapTrendHandler
}

// NewGapHandler creates a new GapHandler.
func NewGapHandler(gap *query.GetGapTrendHandler) *GapHandler {
	return &GapHandler{gap: gap}
}

// Handle processes /gap.
func (h *GapHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	res, err := h.gap.Handle(ctx, query.GetGapTrendQuery{
		ScopeID:    cmd.GuildID,
		ChatUserID: cmd.UserID,
	})
	if err != nil {
		return nil, err
	}
	return Private(presenter.GapText(res)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE HANDLER
// /schedule - next leaderboard post and reminder.
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleHandler handles /schedule.
type ScheduleHandler struct {
	schedule *query.GetPostingScheduleHandler
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(schedule *query.GetPostingScheduleHandler) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// Handle processes /schedule.
func (h *ScheduleHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	res, err := h.schedule.Handle(ctx, query.GetPostingScheduleQuery{ScopeID: cmd.GuildID, Count: 1})
	if err != nil {
		return nil, err
	}
	return Text(presenter.ScheduleText(res)), nil
}
