package handler

import (
	"context"
	"errors"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/internal/interface/discord/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMITSTEPS HANDLER
// /submitsteps week1 week2 - manual entry for users without a device.
// Both weeks of the current period are stored as one manual record, so a
// repeat in the same period replaces the earlier total.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitStepsHandler handles /submitsteps.
type SubmitStepsHandler struct {
	submit  *command.SubmitManualStepsHandler
	roaster *presenter.Roaster
}

// NewSubmitStepsHandler creates a new SubmitStepsHandler.
func NewSubmitStepsHandler(submit *command.SubmitManualStepsHandler, roaster *presenter.Roaster) *SubmitStepsHandler {
	if roaster == nil {
		roaster = presenter.NewRoaster(nil)
	}
	return &SubmitStepsHandler{submit: submit, roaster: roaster}
}

// Handle processes /submitsteps.
func (h *SubmitStepsHandler) Handle(ctx context.Context, cmd CommandContext) (*Reply, error) {
	week1, ok1 := cmd.Options.Int("week1")
	week2, ok2 := cmd.Options.Int("week2")
	if !ok1 || !ok2 || week1 < 0 || week2 < 0 {
		return Private("❌ Both weeks need a whole, non-negative number of steps."), nil
	}

	_, err := h.submit.Handle(ctx, command.SubmitManualStepsCommand{
		ScopeID:     cmd.GuildID,
		ChatUserID:  cmd.UserID,
		DisplayName: cmd.Name(),
		Week1:       week1,
		Week2:       week2,
	})
	switch {
	case errors.Is(err, shared.ErrCompetitionNotStarted):
		return Private(presenter.NotStarted), nil
	case shared.IsConfigurationMissing(err):
		return Private(presenter.NotOpenYet), nil
	case errors.Is(err, shared.ErrValueOutOfRange):
		return Private("❌ That's more steps than one period can hold. Double-check your numbers."), nil
	case shared.IsConflict(err):
		return Private(presenter.Busy), nil
	case err != nil:
		return nil, err
	}

	return Text(h.roaster.Roast()), nil
}
