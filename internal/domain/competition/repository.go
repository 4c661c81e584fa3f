package competition

import (
	"context"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionInput - данные новой отправки для записи в окно.
type SubmissionInput struct {
	ID          string
	DisplayName string
	StepCount   int
	Source      Source
	SubmittedAt time.Time
}

// SubmissionOutcome - результат записи в окно.
type SubmissionOutcome struct {
	Record        SubmissionRecord
	Replaced      bool
	PreviousValue *int
}

// Repository определяет операции хранилища соревнований.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Participants
	// ─────────────────────────────────────────────────────────────────────────

	// GetParticipant возвращает участника вместе с историей.
	// Возвращает ErrParticipantNotFound, если участника нет.
	GetParticipant(ctx context.Context, scope shared.ScopeID, id string) (*Participant, error)

	// ListParticipants возвращает всех участников scope с историями.
	ListParticipants(ctx context.Context, scope shared.ScopeID) ([]*Participant, error)

	// EnsureParticipant создаёт участника при первом обращении; существующий не меняется.
	EnsureParticipant(ctx context.Context, p *Participant) error

	// ─────────────────────────────────────────────────────────────────────────
	// Submissions
	// ─────────────────────────────────────────────────────────────────────────

	// AppendOrReplaceSubmission атомарно находит последнюю запись окна и
	// перезаписывает её либо добавляет новую. Участник создаётся при
	// необходимости. Гонка внутри транзакции возвращается как
	// ErrSubmissionConflict (повторяемая ошибка), без автоматического повтора.
	AppendOrReplaceSubmission(ctx context.Context, scope shared.ScopeID, participantID string, window Window, in SubmissionInput) (*SubmissionOutcome, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Configuration
	// ─────────────────────────────────────────────────────────────────────────

	// GetCompetitionConfig возвращает конфигурацию scope.
	// Возвращает ErrCompetitionNotFound, если сервер ещё не настроен.
	GetCompetitionConfig(ctx context.Context, scope shared.ScopeID) (*CompetitionConfig, error)

	// SaveCompetitionConfig создаёт или обновляет конфигурацию.
	SaveCompetitionConfig(ctx context.Context, cfg *CompetitionConfig) error

	// ListCompetitionConfigs возвращает конфигурации всех серверов.
	ListCompetitionConfigs(ctx context.Context) ([]*CompetitionConfig, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Identity links
	// ─────────────────────────────────────────────────────────────────────────

	// CreateIdentityLink создаёт связь. Возвращает ErrChatIdentityLinked или
	// ErrDeviceLinked, если одна из сторон уже связана в этом scope.
	CreateIdentityLink(ctx context.Context, link *IdentityLink) error

	// GetLinkByChatIdentity возвращает связь пользователя чата.
	GetLinkByChatIdentity(ctx context.Context, scope shared.ScopeID, chatIdentity string) (*IdentityLink, error)

	// ResolveLinkedIdentity возвращает ID пользователя чата для участника:
	// для ручных участников - из синтетического ID, для устройств - по связи.
	ResolveLinkedIdentity(ctx context.Context, scope shared.ScopeID, participantID string) (string, bool, error)
}

// Member - пользователь чата, состоящий в аудитории соревнования.
type Member struct {
	ChatIdentity string
	DisplayName  string
}

// MembershipChecker - возможность проверить, что пользователь чата всё ещё
// состоит в аудитории соревнования. Вынесена из ранжирования, чтобы ядро
// оставалось без ввода-вывода.
type MembershipChecker interface {
	// IsIdentityCurrentlyValid возвращает участника аудитории и true, если
	// identityRef всё ещё в ней состоит. Отсутствие - не ошибка.
	IsIdentityCurrentlyValid(ctx context.Context, scope shared.ScopeID, identityRef string) (Member, bool, error)
}
