package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK IDENTITY COMMAND
// Binds a chat user to a device participant inside one scope. Links are 1:1
// in both directions and are never silently reassigned.
// ══════════════════════════════════════════════════════════════════════════════

// LinkIdentityCommand contains the data to create a link.
type LinkIdentityCommand struct {
	ScopeID    string
	ChatUserID string
	DeviceName string
}

// Validate validates the command.
func (c LinkIdentityCommand) Validate() error {
	if _, err := shared.NewScopeID(c.ScopeID); err != nil {
		return err
	}
	if strings.TrimSpace(c.ChatUserID) == "" || strings.TrimSpace(c.DeviceName) == "" {
		return shared.NewDomainError("identity", "Link", shared.ErrEmptyValue, "chat user and device name are required")
	}
	if strings.HasPrefix(strings.TrimSpace(c.DeviceName), competition.ManualParticipantPrefix) {
		return shared.NewDomainError("identity", "Link", shared.ErrInvalidInput, "manual participants cannot be linked")
	}
	return nil
}

// LinkIdentityResult contains the outcome.
type LinkIdentityResult struct {
	// Linked is true when a new link was created.
	Linked bool

	// AlreadyLinkedTo names the device the chat user is already bound to.
	AlreadyLinkedTo string

	Link        *competition.IdentityLink
	Participant *competition.Participant
}

// LinkIdentityHandler handles the LinkIdentityCommand.
type LinkIdentityHandler struct {
	repo competition.Repository
	now  Clock
}

// NewLinkIdentityHandler creates a new handler.
func NewLinkIdentityHandler(repo competition.Repository) *LinkIdentityHandler {
	return &LinkIdentityHandler{repo: repo, now: systemClock}
}

// WithClock replaces the handler clock.
func (h *LinkIdentityHandler) WithClock(now Clock) *LinkIdentityHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle creates the link. A chat user who already has a link gets
// AlreadyLinkedTo set and no error; a device that belongs to someone else
// returns shared.ErrDeviceLinked.
func (h *LinkIdentityHandler) Handle(ctx context.Context, cmd LinkIdentityCommand) (*LinkIdentityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("link_identity: %w", err)
	}

	scope := shared.ScopeID(strings.TrimSpace(cmd.ScopeID))
	chatID := strings.TrimSpace(cmd.ChatUserID)
	device := strings.TrimSpace(cmd.DeviceName)

	participant, err := h.repo.GetParticipant(ctx, scope, device)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("link_identity: %w", shared.ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("link_identity: load participant: %w", err)
	}

	existing, err := h.repo.GetLinkByChatIdentity(ctx, scope, chatID)
	switch {
	case err == nil:
		return &LinkIdentityResult{AlreadyLinkedTo: existing.DeviceIdentity, Link: existing, Participant: participant}, nil
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("link_identity: load link: %w", err)
	}

	link, err := competition.NewIdentityLink(scope, chatID, device, h.now())
	if err != nil {
		return nil, fmt.Errorf("link_identity: %w", err)
	}
	if err := h.repo.CreateIdentityLink(ctx, link); err != nil {
		return nil, fmt.Errorf("link_identity: %w", err)
	}

	return &LinkIdentityResult{Linked: true, Link: link, Participant: participant}, nil
}
