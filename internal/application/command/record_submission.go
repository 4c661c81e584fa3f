// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// Clock returns the current instant. Handlers default to time.Now in UTC.
type Clock func() time.Time

// IDGenerator returns a fresh record id.
type IDGenerator func() (string, error)

func systemClock() time.Time { return time.Now().UTC() }

func nanoID() (string, error) { return gonanoid.New() }

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SUBMISSION COMMAND
// Writes one step count into a participant's window. A repeat submission in
// the same window replaces the earlier value instead of adding to it.
// ══════════════════════════════════════════════════════════════════════════════

// RecordSubmissionCommand contains the data for one submission.
type RecordSubmissionCommand struct {
	ScopeID       string
	ParticipantID string

	// DisplayName is used only when the participant is created.
	DisplayName string

	StepCount int
	Source    competition.Source

	// Window defaults to the UTC calendar day of SubmittedAt.
	Window *competition.Window

	// SubmittedAt defaults to now.
	SubmittedAt time.Time
}

// Validate validates the command.
func (c RecordSubmissionCommand) Validate() error {
	if _, err := shared.NewScopeID(c.ScopeID); err != nil {
		return err
	}
	if strings.TrimSpace(c.ParticipantID) == "" {
		return shared.ErrInvalidParticipantID
	}
	if !c.Source.IsValid() {
		return shared.ErrInvalidSource
	}
	if _, err := shared.NewStepCount(c.StepCount); err != nil {
		return err
	}
	if c.Window != nil && !c.Window.End.After(c.Window.Start) {
		return shared.NewDomainError("competition", "RecordSubmission", shared.ErrInvalidInput, "window end must be after start")
	}
	return nil
}

// RecordSubmissionResult contains the outcome of a submission.
type RecordSubmissionResult struct {
	Accepted bool

	// Replaced is true when an earlier value in the same window was overwritten.
	Replaced bool

	// PreviousValue is the overwritten value, nil for a first submission.
	PreviousValue *int

	Record competition.SubmissionRecord
	Window competition.Window
}

// Message renders the outcome the way the ingestion API reports it.
func (r *RecordSubmissionResult) Message() string {
	steps := shared.FormatSteps(r.Record.StepCount)
	if r.PreviousValue != nil {
		return fmt.Sprintf("Updated your step submission from %s to %s steps for this week.",
			shared.FormatSteps(*r.PreviousValue), steps)
	}
	return fmt.Sprintf("Successfully submitted %s steps for this week.", steps)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordSubmissionHandler handles the RecordSubmissionCommand.
type RecordSubmissionHandler struct {
	repo  competition.Repository
	now   Clock
	newID IDGenerator
}

// NewRecordSubmissionHandler creates a new handler.
func NewRecordSubmissionHandler(repo competition.Repository) *RecordSubmissionHandler {
	return &RecordSubmissionHandler{
		repo:  repo,
		now:   systemClock,
		newID: nanoID,
	}
}

// WithClock replaces the handler clock.
func (h *RecordSubmissionHandler) WithClock(now Clock) *RecordSubmissionHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// WithIDGenerator replaces the record id source.
func (h *RecordSubmissionHandler) WithIDGenerator(gen IDGenerator) *RecordSubmissionHandler {
	if gen != nil {
		h.newID = gen
	}
	return h
}

// Handle executes the record submission command.
// A concurrent write to the same window surfaces as a retryable
// shared.ErrSubmissionConflict; the handler does not retry it.
func (h *RecordSubmissionHandler) Handle(ctx context.Context, cmd RecordSubmissionCommand) (*RecordSubmissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_submission: %w", err)
	}

	at := cmd.SubmittedAt
	if at.IsZero() {
		at = h.now()
	}
	at = at.UTC()

	window := competition.DayWindow(at)
	if cmd.Window != nil {
		window = *cmd.Window
	}

	id, err := h.newID()
	if err != nil {
		return nil, fmt.Errorf("record_submission: generate id: %w", err)
	}

	participantID := strings.TrimSpace(cmd.ParticipantID)
	displayName := strings.TrimSpace(cmd.DisplayName)
	if displayName == "" {
		displayName = participantID
	}

	outcome, err := h.repo.AppendOrReplaceSubmission(ctx, shared.ScopeID(strings.TrimSpace(cmd.ScopeID)), participantID, window,
		competition.SubmissionInput{
			ID:          id,
			DisplayName: displayName,
			StepCount:   cmd.StepCount,
			Source:      cmd.Source,
			SubmittedAt: at,
		})
	if err != nil {
		return nil, fmt.Errorf("record_submission: %w", err)
	}

	return &RecordSubmissionResult{
		Accepted:      true,
		Replaced:      outcome.Replaced,
		PreviousValue: outcome.PreviousValue,
		Record:        outcome.Record,
		Window:        window,
	}, nil
}
