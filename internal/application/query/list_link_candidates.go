package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST LINK CANDIDATES QUERY
// Подсказки для автодополнения имени устройства в команде привязки.
// ══════════════════════════════════════════════════════════════════════════════

// MaxLinkCandidates - лимит вариантов автодополнения в Discord.
const MaxLinkCandidates = 25

// ListLinkCandidatesQuery содержит параметры запроса.
type ListLinkCandidatesQuery struct {
	ScopeID string

	// Prefix - введённый пользователем текст; ищется как подстрока без учёта регистра.
	Prefix string
}

// Validate проверяет корректность параметров запроса.
func (q *ListLinkCandidatesQuery) Validate() error {
	_, err := shared.NewScopeID(q.ScopeID)
	return err
}

// LinkCandidateDTO - один вариант автодополнения.
type LinkCandidateDTO struct {
	DeviceName string `json:"deviceName"`
	Steps      int    `json:"steps"`
	Label      string `json:"label"`
}

// ListLinkCandidatesHandler обрабатывает запрос.
type ListLinkCandidatesHandler struct {
	repo competition.Repository
}

// NewListLinkCandidatesHandler создаёт обработчик.
func NewListLinkCandidatesHandler(repo competition.Repository) *ListLinkCandidatesHandler {
	return &ListLinkCandidatesHandler{repo: repo}
}

// Handle возвращает участников-устройств, чьё имя содержит Prefix.
// Если совпадений нет, возвращаются все устройства.
func (h *ListLinkCandidatesHandler) Handle(ctx context.Context, q ListLinkCandidatesQuery) ([]LinkCandidateDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListLinkCandidates", shared.ErrValidation, "invalid query", err)
	}

	participants, err := h.repo.ListParticipants(ctx, shared.ScopeID(strings.TrimSpace(q.ScopeID)))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	devices := make([]*competition.Participant, 0, len(participants))
	for _, p := range participants {
		if p != nil && !p.IsManual() {
			devices = append(devices, p)
		}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Prefix))
	matches := devices
	if needle != "" {
		filtered := make([]*competition.Participant, 0, len(devices))
		for _, p := range devices {
			if strings.Contains(strings.ToLower(p.ID), needle) {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			matches = filtered
		}
	}

	if len(matches) > MaxLinkCandidates {
		matches = matches[:MaxLinkCandidates]
	}

	out := make([]LinkCandidateDTO, 0, len(matches))
	for _, p := range matches {
		out = append(out, LinkCandidateDTO{
			DeviceName: p.ID,
			Steps:      p.CumulativeSteps,
			Label:      fmt.Sprintf("%s (%s steps)", p.ID, shared.FormatSteps(p.CumulativeSteps)),
		})
	}
	return out, nil
}
