package query

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
// GET POSTING SCHEDULE QUERY
// Ближайшие публикации лидерборда и напоминания перед ними.
// ══════════════════════════════════════════════════════════════════════════════

// MaxScheduleCount - максимум occurrences в одном ответе.
const MaxScheduleCount = 10

// GetPostingScheduleQuery содержит параметры запроса расписания.
type GetPostingScheduleQuery struct {
	// ScopeID - сервер; пустой означает расписание по умолчанию.
	ScopeID string

	// Count - сколько публикаций вернуть (по умолчанию 1).
	Count int
}

// Validate проверяет корректность параметров запроса.
func (q *GetPostingScheduleQuery) Validate() error {
	if q.Count < 0 || q.Count > MaxScheduleCount {
		return shared.NewDomainError("query", "GetPostingSchedule", shared.ErrInvalidInput,
			fmt.Sprintf("count must be between 0 and %d", MaxScheduleCount))
	}
	return nil
}

// OccurrenceDTO - одна будущая публикация или напоминание.
type OccurrenceDTO struct {
	At        time.Time `json:"at"`
	TimeUntil string    `json:"timeUntil"`
}

// WindowDTO - окно отправки шагов с устройства перед публикацией.
type WindowDTO struct {
	Opens  time.Time `json:"opens"`
	Closes time.Time `json:"closes"`
	Post   time.Time `json:"post"`
}

// GetPostingScheduleResult содержит результат.
type GetPostingScheduleResult struct {
	Schedule  schedule.Config `json:"-"`
	Summary   string          `json:"schedule"`
	Enabled   bool            `json:"enabled"`
	Posts     []OccurrenceDTO `json:"posts"`
	Reminders []OccurrenceDTO `json:"reminders"`

	// OpenWindow - окно, открытое прямо сейчас.
	OpenWindow *WindowDTO `json:"openWindow,omitempty"`

	// NextWindow - следующее окно, которое ещё не открылось.
	NextWindow *WindowDTO `json:"nextWindow,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// GetPostingScheduleHandler обрабатывает запрос расписания.
type GetPostingScheduleHandler struct {
	repo     competition.Repository
	defaults schedule.Config
	calc     *schedule.Calculator
	now      Clock
}

// NewGetPostingScheduleHandler создаёт обработчик.
func NewGetPostingScheduleHandler(repo competition.Repository, defaults schedule.Config) *GetPostingScheduleHandler {
	return &GetPostingScheduleHandler{
		repo:     repo,
		defaults: defaults,
		calc:     schedule.NewCalculator(),
		now:      systemClock,
	}
}

// WithClock подменяет часы.
func (h *GetPostingScheduleHandler) WithClock(now Clock) *GetPostingScheduleHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle выполняет запрос.
func (h *GetPostingScheduleHandler) Handle(ctx context.Context, q GetPostingScheduleQuery) (*GetPostingScheduleResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetPostingSchedule", shared.ErrValidation, "invalid query", err)
	}
	count := q.Count
	if count == 0 {
		count = 1
	}
	now := h.now().UTC()

	cfg := h.defaults
	if scope := strings.TrimSpace(q.ScopeID); scope != "" {
		stored, err := h.repo.GetCompetitionConfig(ctx, shared.ScopeID(scope))
		switch {
		case err == nil:
			cfg = stored.Schedule
		case shared.IsNotFound(err):
		default:
			return nil, fmt.Errorf("get config: %w", err)
		}
	}

	result := &GetPostingScheduleResult{
		Schedule:    cfg,
		Summary:     cfg.String(),
		Enabled:     cfg.Enabled,
		Posts:       occurrenceDTOs(h.calc.NextOccurrences(cfg, now, count)),
		Reminders:   occurrenceDTOs(h.calc.NextReminders(cfg, now, count)),
		GeneratedAt: now,
	}
	if w, ok := h.calc.SubmissionWindow(cfg, now); ok {
		result.OpenWindow = windowDTO(w)
	}
	if w, ok := h.calc.NextSubmissionWindow(cfg, now); ok {
		result.NextWindow = windowDTO(w)
	}
	return result, nil
}

func occurrenceDTOs(occ []schedule.Occurrence) []OccurrenceDTO {
	out := make([]OccurrenceDTO, 0, len(occ))
	for _, o := range occ {
		out = append(out, OccurrenceDTO{At: o.Timestamp, TimeUntil: o.TimeUntil.String()})
	}
	return out
}

func windowDTO(w schedule.Window) *WindowDTO {
	return &WindowDTO{Opens: w.Opens, Closes: w.Closes, Post: w.Post}
}
