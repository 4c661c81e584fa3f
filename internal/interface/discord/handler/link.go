package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK HANDLER
// /link name - binds the invoking Discord user to a device participant.
// The name option autocompletes from the devices that have submitted steps.
// ══════════════════════════════════════════════════════════════════════════════

// LinkHandler handles /link and its autocomplete.
type LinkHandler struct {
	link       *command.LinkIdentityHandler
	candidates *query.ListLinkCandidatesHandler
	now        func() time.Time
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(link *command.LinkIdentityHandler, candidates *query.ListLinkCandidatesHandler) *LinkHandler {
	return &LinkHandler{link: link, candidates: candidates, now: time.Now}
}

// Handle processes /link.
func (h *LinkHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	device, _ := cmd.Options.String("name")
	device = strings.TrimSpace(device)
	if device == "" {
		return Private(presenter.DeviceNotFound(device)), nil
	}

	res, err := h.link.Handle(ctx, command.LinkIdentityCommand{
		ScopeID:    cmd.GuildID,
		ChatUserID: cmd.UserID,
		DeviceName: device,
	})
	switch {
	case errors.Is(err, shared.ErrDeviceNotFound):
		return Private(presenter.DeviceNotFound(device)), nil
	case errors.Is(err, shared.ErrDeviceLinked):
		return Private(presenter.DeviceTaken(device)), nil
	case errors.Is(err, shared.ErrChatIdentityLinked):
		// Lost a race with another /link from the same user.
		return Private(presenter.AlreadyLinked(device)), nil
	case shared.IsValidation(err):
		return Private(presenter.DeviceNotFound(device)), nil
	case err != nil:
		return nil, err
	}

	if !res.Linked {
		return Private(presenter.AlreadyLinked(res.AlreadyLinkedTo)), nil
	}

	steps := 0
	if res.Participant != nil {
		steps = res.Participant.CumulativeSteps
	}
	return Embed(presenter.LinkedEmbed(device, steps, h.now())), nil
}

// Autocomplete suggests device names matching what the user typed.
func (h *LinkHandler) Autocomplete(ctx context.Context, cmd CommandContext, typed string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	found, err := h.candidates.Handle(ctx, query.ListLinkCandidatesQuery{
		ScopeID: cmd.GuildID,
		Prefix:  typed,
	})
	if err != nil {
		return nil, err
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(found))
	for _, c := range found {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(c.Label, 100),
			Value: c.DeviceName,
		})
	}
	return choices, nil
}

// truncate shortens s to n runes; Discord rejects longer choice names.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
