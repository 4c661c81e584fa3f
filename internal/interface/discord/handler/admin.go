package handler

import (
	"context"
	"strings"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETCHANNEL HANDLER
// /setchannel [channel] - makes a channel the bot's channel for commands and
// scheduled posts. Defaults to the channel the command was used in.
// ══════════════════════════════════════════════════════════════════════════════

// SetChannelHandler handles /setchannel.
type SetChannelHandler struct {
	configure *command.ConfigureCompetitionHandler
}

// NewSetChannelHandler creates a new SetChannelHandler.
func NewSetChannelHandler(configure *command.ConfigureCompetitionHandler) *SetChannelHandler {
	return &SetChannelHandler{configure: configure}
}

// Handle processes /setchannel.
func (h *SetChannelHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	channelID := cmd.ChannelID
	if picked, ok := cmd.Options.Channel("channel"); ok {
		channelID = picked
	}
	channelID = strings.TrimSpace(channelID)

	if _, err := h.configure.SetChannel(ctx, command.SetChannelCommand{
		ScopeID:   cmd.GuildID,
		ChannelID: channelID,
	}); err != nil {
		return nil, err
	}

	reply := Private(presenter.ChannelSet(channelID))
	reply.Announcement = presenter.ChannelActivated
	reply.AnnounceChannel = channelID
	return reply, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STARTSTEPPING HANDLER
// /startstepping - binds the competition to the current channel and anchors
// the first period to the next scheduled trigger.
// ══════════════════════════════════════════════════════════════════════════════

// StartSteppingHandler handles /startstepping.
type StartSteppingHandler struct {
	configure *command.ConfigureCompetitionHandler
}

// NewStartSteppingHandler creates a new StartSteppingHandler.
func NewStartSteppingHandler(configure *command.ConfigureCompetitionHandler) *StartSteppingHandler {
	return &StartSteppingHandler{configure: configure}
}

// Handle processes /startstepping.
func (h *StartSteppingHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	res, err := h.configure.Start(ctx, command.StartCompetitionCommand{
		ScopeID:   cmd.GuildID,
		ChannelID: cmd.ChannelID,
	})
	if err != nil {
		return nil, err
	}

	reply := Private(presenter.Started(cmd.ChannelID))
	if anchor, ok := res.Config.Anchor(); ok {
		reply.Announcement = presenter.StartAnnouncement(anchor)
		reply.AnnounceChannel = cmd.ChannelID
	}
	return reply, nil
}
