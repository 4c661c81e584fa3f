package leaderboard

import (
	"sort"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKER
// Сортировка по итогу по убыванию. При равенстве выше тот, чья последняя
// учтённая отправка раньше (он набрал итог первым), затем ID по возрастанию.
// Участники без отправок при равенстве идут последними.
// ══════════════════════════════════════════════════════════════════════════════

// IdentityResolver возвращает внешнюю личность участника или false, если
// её нет (нет связи или пользователь больше не в аудитории).
type IdentityResolver func(p *competition.Participant) (Identity, bool)

// Ranker строит лидерборд из участников.
type Ranker struct {
	engine *competition.AggregationEngine
}

// NewRanker создаёт ранжировщик.
func NewRanker(engine *competition.AggregationEngine) *Ranker {
	if engine == nil {
		engine = competition.NewAggregationEngine(nil, nil)
	}
	return &Ranker{engine: engine}
}

// Rank фильтрует, сортирует и нумерует участников. Нерезолвленные участники
// исключаются, а не получают ноль. Пустой результат - не ошибка.
func (r *Ranker) Rank(
	participants []*competition.Participant,
	cfg *competition.CompetitionConfig,
	now time.Time,
	resolve IdentityResolver,
) []RankedEntry {
	entries := make([]RankedEntry, 0, len(participants))
	for _, p := range participants {
		if p == nil || resolve == nil {
			continue
		}
		identity, ok := resolve(p)
		if !ok {
			continue
		}
		entries = append(entries, RankedEntry{
			ParticipantID:    p.ID,
			ChatIdentity:     identity.ChatIdentity,
			DisplayName:      identity.DisplayName,
			Steps:            r.engine.RollingTotal(p, cfg, now),
			LastSubmissionAt: r.engine.LastCounted(p, cfg, now),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Steps != b.Steps {
			return a.Steps > b.Steps
		}
		if !a.LastSubmissionAt.Equal(b.LastSubmissionAt) {
			switch {
			case a.LastSubmissionAt.IsZero():
				return false
			case b.LastSubmissionAt.IsZero():
				return true
			}
			return a.LastSubmissionAt.Before(b.LastSubmissionAt)
		}
		return a.ParticipantID < b.ParticipantID
	})

	for i := range entries {
		entries[i].Rank = shared.Rank(i + 1)
		entries[i].IsLeader = i == 0
	}
	return entries
}

// Build оборачивает Rank в Leaderboard.
func (r *Ranker) Build(
	scope shared.ScopeID,
	participants []*competition.Participant,
	cfg *competition.CompetitionConfig,
	now time.Time,
	resolve IdentityResolver,
) *Leaderboard {
	return &Leaderboard{
		ScopeID:     scope,
		Entries:     r.Rank(participants, cfg, now, resolve),
		GeneratedAt: now,
	}
}
