package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT MANUAL STEPS COMMAND
// A chat user without a device reports both weeks of the current period at
// once. The sum is stored as a single manual-entry record in the period
// window, so a second report for the same period replaces the first.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitManualStepsCommand contains a manual two-week report.
type SubmitManualStepsCommand struct {
	ScopeID     string
	ChatUserID  string
	DisplayName string
	Week1       int
	Week2       int
}

// Validate validates the command.
func (c SubmitManualStepsCommand) Validate() error {
	if _, err := shared.NewScopeID(c.ScopeID); err != nil {
		return err
	}
	if strings.TrimSpace(c.ChatUserID) == "" {
		return shared.ErrInvalidParticipantID
	}
	if c.Week1 < 0 || c.Week2 < 0 {
		return shared.NewDomainError("competition", "SubmitManualSteps", shared.ErrNegativeValue, "weekly steps cannot be negative")
	}
	if _, err := shared.NewStepCount(c.Week1 + c.Week2); err != nil {
		return err
	}
	return nil
}

// SubmitManualStepsResult contains the outcome.
type SubmitManualStepsResult struct {
	// Recorded is false for a zero total, which is accepted but stores nothing.
	Recorded      bool
	ParticipantID string
	Total         int
	Period        competition.Period
	PreviousValue *int
}

// SubmitManualStepsHandler handles the SubmitManualStepsCommand.
type SubmitManualStepsHandler struct {
	repo    competition.Repository
	record  *RecordSubmissionHandler
	periods *competition.PeriodCalculator
	now     Clock
}

// NewSubmitManualStepsHandler creates a new handler.
func NewSubmitManualStepsHandler(repo competition.Repository, record *RecordSubmissionHandler) *SubmitManualStepsHandler {
	if record == nil {
		record = NewRecordSubmissionHandler(repo)
	}
	return &SubmitManualStepsHandler{
		repo:    repo,
		record:  record,
		periods: competition.NewPeriodCalculator(),
		now:     systemClock,
	}
}

// WithClock replaces the handler clock.
func (h *SubmitManualStepsHandler) WithClock(now Clock) *SubmitManualStepsHandler {
	if now != nil {
		h.now = now
		h.record.WithClock(now)
	}
	return h
}

// Handle executes the manual submission.
func (h *SubmitManualStepsHandler) Handle(ctx context.Context, cmd SubmitManualStepsCommand) (*SubmitManualStepsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_manual_steps: %w", err)
	}

	scope := shared.ScopeID(strings.TrimSpace(cmd.ScopeID))
	cfg, err := h.repo.GetCompetitionConfig(ctx, scope)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("submit_manual_steps: load config: %w", err)
	}
	anchor, ok := cfg.Anchor()
	if !ok {
		return nil, fmt.Errorf("submit_manual_steps: %w", shared.ErrCompetitionNotStarted)
	}

	now := h.now().UTC()
	period, ok := h.periods.Current(anchor, now)
	if !ok {
		return nil, fmt.Errorf("submit_manual_steps: %w", shared.NewDomainError(
			"competition", "SubmitManualSteps", shared.ErrConfigurationMissing, "the first period has not begun yet"))
	}

	participantID := competition.ManualParticipantID(strings.TrimSpace(cmd.ChatUserID))
	result := &SubmitManualStepsResult{
		ParticipantID: participantID,
		Total:         cmd.Week1 + cmd.Week2,
		Period:        period,
	}
	if result.Total == 0 {
		return result, nil
	}

	window := period.Window()
	recorded, err := h.record.Handle(ctx, RecordSubmissionCommand{
		ScopeID:       string(scope),
		ParticipantID: participantID,
		DisplayName:   cmd.DisplayName,
		StepCount:     result.Total,
		Source:        competition.SourceManualEntry,
		Window:        &window,
		SubmittedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("submit_manual_steps: %w", err)
	}

	result.Recorded = true
	result.PreviousValue = recorded.PreviousValue
	return result, nil
}
