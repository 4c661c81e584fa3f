// Package competition содержит доменную модель соревнования по шагам.
// Здесь живут участники, их сырые отправки шагов, конфигурация соревнования
// и чистая логика периодов, окон и агрегации. Внешних зависимостей нет,
// логирования нет: наблюдаемость - забота вызывающего кода.
package competition

import (
	"sort"
	"strings"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Source определяет, откуда пришла отправка шагов.
type Source string

const (
	// SourceDeviceAPI - отправка с устройства через HTTP API.
	SourceDeviceAPI Source = "device-api"

	// SourceManualEntry - ручной ввод через чат-команду.
	SourceManualEntry Source = "manual-entry"
)

// IsValid проверяет, что источник известен.
func (s Source) IsValid() bool {
	return s == SourceDeviceAPI || s == SourceManualEntry
}

// String возвращает строковое представление источника.
func (s Source) String() string {
	return string(s)
}

// ManualParticipantPrefix - префикс синтетических ID для ручных участников.
const ManualParticipantPrefix = "discord_"

// ManualParticipantID строит ID участника для пользователя чата.
func ManualParticipantID(chatUserID string) string {
	return ManualParticipantPrefix + chatUserID
}

// ChatIdentityFromParticipantID извлекает ID пользователя чата из синтетического ID.
func ChatIdentityFromParticipantID(participantID string) (string, bool) {
	if !strings.HasPrefix(participantID, ManualParticipantPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(participantID, ManualParticipantPrefix)
	return id, id != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION RECORD
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRecord - одна принятая отправка шагов.
// Неизменяема после создания, кроме замены значения в том же окне.
type SubmissionRecord struct {
	ID        string
	Timestamp time.Time
	StepCount int
	Source    Source
}

// byTimestamp упорядочивает записи по времени, при равенстве - по ID.
// Порядок вставки в хранилище никогда не влияет на результат.
func byTimestamp(records []SubmissionRecord) func(i, j int) bool {
	return func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	}
}

// SortedHistory возвращает копию истории, упорядоченную по времени.
func SortedHistory(history []SubmissionRecord) []SubmissionRecord {
	out := make([]SubmissionRecord, len(history))
	copy(out, history)
	sort.SliceStable(out, byTimestamp(out))
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT
// ══════════════════════════════════════════════════════════════════════════════

// Participant - участник соревнования в рамках одного scope.
// CumulativeSteps поддерживается хранилищем и используется только для
// отображения; итог по периодам всегда пересчитывается из History.
type Participant struct {
	ID              string
	ScopeID         shared.ScopeID
	DisplayName     string
	CumulativeSteps int
	History         []SubmissionRecord
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewParticipant создаёт нового участника с валидацией.
func NewParticipant(scope shared.ScopeID, id, displayName string, now time.Time) (*Participant, error) {
	if !scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, shared.ErrInvalidParticipantID
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = id
	}
	return &Participant{
		ID:          id,
		ScopeID:     scope,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsManual возвращает true для участников с синтетическим ID.
func (p *Participant) IsManual() bool {
	return strings.HasPrefix(p.ID, ManualParticipantPrefix)
}

// LatestSubmission возвращает самую свежую отправку участника.
func (p *Participant) LatestSubmission() (SubmissionRecord, bool) {
	if len(p.History) == 0 {
		return SubmissionRecord{}, false
	}
	sorted := SortedHistory(p.History)
	return sorted[len(sorted)-1], true
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// CompetitionConfig - настройки соревнования одного сервера.
// Отсутствие AnchorStartDate означает простой накопительный итог без периодов.
type CompetitionConfig struct {
	ScopeID           shared.ScopeID
	PostingChannelRef string
	AnchorStartDate   *time.Time
	Schedule          schedule.Config
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewCompetitionConfig создаёт конфигурацию с расписанием по умолчанию.
func NewCompetitionConfig(scope shared.ScopeID, defaults schedule.Config, now time.Time) (*CompetitionConfig, error) {
	if !scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &CompetitionConfig{
		ScopeID:   scope,
		Schedule:  defaults,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Anchor возвращает дату старта, если она задана.
func (c *CompetitionConfig) Anchor() (time.Time, bool) {
	if c == nil || c.AnchorStartDate == nil {
		return time.Time{}, false
	}
	return c.AnchorStartDate.UTC(), true
}

// HasChannel возвращает true, если канал для публикаций настроен.
func (c *CompetitionConfig) HasChannel() bool {
	return c != nil && c.PostingChannelRef != ""
}

// SetChannel задаёт канал для публикаций.
func (c *CompetitionConfig) SetChannel(channelRef string, now time.Time) error {
	channelRef = strings.TrimSpace(channelRef)
	if channelRef == "" {
		return shared.NewDomainError("competition", "SetChannel", shared.ErrEmptyValue, "channel cannot be empty")
	}
	c.PostingChannelRef = channelRef
	c.UpdatedAt = now
	return nil
}

// Start задаёт канал и дату старта соревнования.
func (c *CompetitionConfig) Start(channelRef string, anchor, now time.Time) error {
	if err := c.SetChannel(channelRef, now); err != nil {
		return err
	}
	a := anchor.UTC()
	c.AnchorStartDate = &a
	return nil
}

// UpdateSchedule заменяет расписание после валидации.
func (c *CompetitionConfig) UpdateSchedule(cfg schedule.Config, now time.Time) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.Schedule = cfg
	c.UpdatedAt = now
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY LINK
// ══════════════════════════════════════════════════════════════════════════════

// IdentityLink связывает пользователя чата с устройством в рамках scope.
// Связь 1:1 в обе стороны; переназначение только через удаление и создание.
type IdentityLink struct {
	ScopeID        shared.ScopeID
	ChatIdentity   string
	DeviceIdentity string
	CreatedAt      time.Time
}

// NewIdentityLink создаёт связь с валидацией.
func NewIdentityLink(scope shared.ScopeID, chatIdentity, deviceIdentity string, now time.Time) (*IdentityLink, error) {
	if !scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}
	chatIdentity = strings.TrimSpace(chatIdentity)
	deviceIdentity = strings.TrimSpace(deviceIdentity)
	if chatIdentity == "" || deviceIdentity == "" {
		return nil, shared.NewDomainError("identity", "Link", shared.ErrEmptyValue, "both identities are required")
	}
	return &IdentityLink{
		ScopeID:        scope,
		ChatIdentity:   chatIdentity,
		DeviceIdentity: deviceIdentity,
		CreatedAt:      now,
	}, nil
}
