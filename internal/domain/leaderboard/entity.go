// Package leaderboard содержит доменную модель лидерборда соревнования по шагам.
// Ранжирование и тренд отставания - чистые функции: всё, что требует
// ввода-вывода (проверка членства, имена из чата), приходит извне уже готовым.
package leaderboard

import (
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// RankedEntry представляет одну строку лидерборда.
type RankedEntry struct {
	// Rank - позиция, начиная с 1. Ранги непрерывны и не повторяются.
	Rank shared.Rank

	// ParticipantID - ID участника (имя устройства или discord_<id>).
	ParticipantID string

	// ChatIdentity - ID пользователя чата, к которому привязан участник.
	ChatIdentity string

	// DisplayName - имя для отображения из чата.
	DisplayName string

	// Steps - скользящий итог на момент построения.
	Steps int

	// IsLeader - true только для первого места.
	IsLeader bool

	// LastSubmissionAt - время последней учтённой отправки (вторичный ключ сортировки).
	LastSubmissionAt time.Time
}

// Identity - внешняя личность участника, найденная в чате.
type Identity struct {
	ChatIdentity string
	DisplayName  string
}

// Leaderboard - упорядоченный результат ранжирования одного scope.
type Leaderboard struct {
	ScopeID     shared.ScopeID
	Entries     []RankedEntry
	GeneratedAt time.Time
}

// IsEmpty возвращает true, если ни один участник не прошёл фильтр.
func (l *Leaderboard) IsEmpty() bool {
	return l == nil || len(l.Entries) == 0
}

// Leader возвращает лидера, если он есть.
func (l *Leaderboard) Leader() (RankedEntry, bool) {
	if l.IsEmpty() {
		return RankedEntry{}, false
	}
	return l.Entries[0], true
}

// FindByParticipant ищет строку участника.
func (l *Leaderboard) FindByParticipant(participantID string) (RankedEntry, bool) {
	if l == nil {
		return RankedEntry{}, false
	}
	for _, e := range l.Entries {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	return RankedEntry{}, false
}

// Top возвращает первые n строк.
func (l *Leaderboard) Top(n int) []RankedEntry {
	if l == nil || n <= 0 {
		return nil
	}
	if n > len(l.Entries) {
		n = len(l.Entries)
	}
	return l.Entries[:n]
}
