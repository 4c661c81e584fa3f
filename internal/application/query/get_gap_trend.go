package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/leaderboard"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GAP TREND QUERY
// Показывает, сокращает ли участник отставание от суммы группы между двумя
// последними днями, в которые он отправлял шаги. Недостаток данных - не
// ошибка, а Available=false.
// ══════════════════════════════════════════════════════════════════════════════

// GetGapTrendQuery содержит параметры запроса.
// Нужно указать ParticipantID или ChatUserID.
type GetGapTrendQuery struct {
	ScopeID       string
	ParticipantID string

	// ChatUserID - пользователь чата; участник ищется по связи с устройством,
	// иначе используется его ручной ID.
	ChatUserID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetGapTrendQuery) Validate() error {
	if _, err := shared.NewScopeID(q.ScopeID); err != nil {
		return err
	}
	if strings.TrimSpace(q.ParticipantID) == "" && strings.TrimSpace(q.ChatUserID) == "" {
		return shared.ErrInvalidParticipantID
	}
	return nil
}

// GetGapTrendResult содержит результат.
type GetGapTrendResult struct {
	ParticipantID string `json:"participantId"`

	// Available - false, если дней меньше двух или вчерашнее отставание 0.
	Available bool `json:"available"`

	// Percent задан ровно тогда, когда Available; 0 означает неизменный разрыв.
	Percent      *float64 `json:"percent,omitempty"`
	Yesterday    string  `json:"yesterday,omitempty"`
	Today        string  `json:"today,omitempty"`
	YesterdayGap int     `json:"yesterdayGap,omitempty"`
	TodayGap     int     `json:"todayGap,omitempty"`
}

// GetGapTrendHandler обрабатывает запрос тренда.
type GetGapTrendHandler struct {
	repo competition.Repository
	calc *leaderboard.GapTrendCalculator
	now  Clock
}

// NewGetGapTrendHandler создаёт обработчик.
func NewGetGapTrendHandler(repo competition.Repository) *GetGapTrendHandler {
	return &GetGapTrendHandler{
		repo: repo,
		calc: leaderboard.NewGapTrendCalculator(nil),
		now:  systemClock,
	}
}

// WithClock подменяет часы.
func (h *GetGapTrendHandler) WithClock(now Clock) *GetGapTrendHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle выполняет запрос.
func (h *GetGapTrendHandler) Handle(ctx context.Context, q GetGapTrendQuery) (*GetGapTrendResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetGapTrend", shared.ErrValidation, "invalid query", err)
	}
	scope := shared.ScopeID(strings.TrimSpace(q.ScopeID))
	now := h.now().UTC()

	participantID, err := h.participantID(ctx, scope, q)
	if err != nil {
		return nil, err
	}
	result := &GetGapTrendResult{ParticipantID: participantID}

	participants, err := h.repo.ListParticipants(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	var (
		own    []competition.SubmissionRecord
		cohort = make([][]competition.SubmissionRecord, 0, len(participants))
	)
	for _, p := range participants {
		history := upTo(p.History, now)
		cohort = append(cohort, history)
		if p.ID == participantID {
			own = history
		}
	}

	trend, ok := h.calc.GapChangePercent(own, cohort)
	if !ok {
		return result, nil
	}

	result.Available = true
	pct := trend.Percent
	result.Percent = &pct
	result.Yesterday = trend.Yesterday.String()
	result.Today = trend.Today.String()
	result.YesterdayGap = trend.YesterdayGap
	result.TodayGap = trend.TodayGap
	return result, nil
}

func (h *GetGapTrendHandler) participantID(ctx context.Context, scope shared.ScopeID, q GetGapTrendQuery) (string, error) {
	if id := strings.TrimSpace(q.ParticipantID); id != "" {
		return id, nil
	}
	chatID := strings.TrimSpace(q.ChatUserID)
	link, err := h.repo.GetLinkByChatIdentity(ctx, scope, chatID)
	switch {
	case err == nil:
		return link.DeviceIdentity, nil
	case shared.IsNotFound(err):
		return competition.ManualParticipantID(chatID), nil
	default:
		return "", fmt.Errorf("get link: %w", err)
	}
}

// upTo отбрасывает записи позже now.
func upTo(history []competition.SubmissionRecord, now time.Time) []competition.SubmissionRecord {
	out := make([]competition.SubmissionRecord, 0, len(history))
	for _, rec := range history {
		if !rec.Timestamp.After(now) {
			out = append(out, rec)
		}
	}
	return out
}
