// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/leaderboard"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// Clock возвращает текущее время.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// DefaultMembershipConcurrency - сколько проверок членства идут параллельно.
const DefaultMembershipConcurrency = 8

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Строит текущий лидерборд scope: итоги пересчитываются из истории на
// каждый запрос, участники без действующей связи с пользователем чата
// молча исключаются.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// ScopeID - сервер, для которого строится лидерборд.
	ScopeID string

	// Limit - количество записей (0 = все).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if _, err := shared.NewScopeID(q.ScopeID); err != nil {
		return err
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrNegativeValue, "limit cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO - DTO для записи лидерборда.
type LeaderboardEntryDTO struct {
	Rank          int    `json:"rank"`
	Medal         string `json:"medal"`
	ParticipantID string `json:"participantId"`
	ChatIdentity  string `json:"chatIdentity"`
	DisplayName   string `json:"displayName"`
	Steps         int    `json:"steps"`
	IsLeader      bool   `json:"isLeader"`
}

// PeriodDTO - текущий 14-дневный период.
type PeriodDTO struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	ScopeID string                `json:"guildId"`
	Entries []LeaderboardEntryDTO `json:"entries"`

	// TotalCount - число ранжированных участников до применения Limit.
	TotalCount int `json:"totalCount"`

	// Mode - "periodic" при заданной дате старта, иначе "cumulative".
	Mode competition.AggregationMode `json:"mode"`

	// Period - текущий период, если соревнование запущено.
	Period *PeriodDTO `json:"period,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`

	// Unverified - участники, членство которых не удалось проверить;
	// они исключены из лидерборда.
	Unverified []UnverifiedIdentity `json:"-"`

	// Board - доменный лидерборд для презентеров.
	Board *leaderboard.Leaderboard `json:"-"`
}

// UnverifiedIdentity - неудачная проверка членства одного участника.
type UnverifiedIdentity struct {
	ParticipantID string
	ChatIdentity  string
	Err           error
}

// GetLeaderboardHandler обрабатывает запрос лидерборда.
type GetLeaderboardHandler struct {
	repo        competition.Repository
	membership  competition.MembershipChecker
	ranker      *leaderboard.Ranker
	periods     *competition.PeriodCalculator
	concurrency int
	now         Clock
}

// NewGetLeaderboardHandler создаёт обработчик.
func NewGetLeaderboardHandler(repo competition.Repository, membership competition.MembershipChecker) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		repo:        repo,
		membership:  membership,
		ranker:      leaderboard.NewRanker(nil),
		periods:     competition.NewPeriodCalculator(),
		concurrency: DefaultMembershipConcurrency,
		now:         systemClock,
	}
}

// WithClock подменяет часы.
func (h *GetLeaderboardHandler) WithClock(now Clock) *GetLeaderboardHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// WithConcurrency ограничивает число параллельных проверок членства.
func (h *GetLeaderboardHandler) WithConcurrency(n int) *GetLeaderboardHandler {
	if n > 0 {
		h.concurrency = n
	}
	return h
}

// Handle выполняет запрос.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, "invalid query", err)
	}
	scope := shared.ScopeID(strings.TrimSpace(q.ScopeID))
	now := h.now().UTC()

	cfg, err := h.repo.GetCompetitionConfig(ctx, scope)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get config: %w", err)
	}

	participants, err := h.repo.ListParticipants(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	identities, unverified, err := resolveIdentities(ctx, h.repo, h.membership, scope, participants, h.concurrency)
	if err != nil {
		return nil, err
	}

	board := h.ranker.Build(scope, participants, cfg, now, func(p *competition.Participant) (leaderboard.Identity, bool) {
		id, ok := identities[p.ID]
		if !ok {
			return leaderboard.Identity{}, false
		}
		if id.DisplayName == "" {
			id.DisplayName = p.DisplayName
		}
		return id, true
	})

	result := &GetLeaderboardResult{
		ScopeID:     string(scope),
		TotalCount:  len(board.Entries),
		Mode:        competition.ModeCumulative,
		GeneratedAt: now,
		Unverified:  unverified,
		Board:       board,
	}
	if anchor, ok := cfg.Anchor(); ok {
		result.Mode = competition.ModePeriodic
		if p, ok := h.periods.Current(anchor, now); ok {
			result.Period = &PeriodDTO{Index: p.Index, Start: p.Start, End: p.End}
		}
	}

	entries := board.Entries
	if q.Limit > 0 {
		entries = board.Top(q.Limit)
	}
	result.Entries = make([]LeaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		result.Entries = append(result.Entries, LeaderboardEntryDTO{
			Rank:          e.Rank.Int(),
			Medal:         e.Rank.Medal(),
			ParticipantID: e.ParticipantID,
			ChatIdentity:  e.ChatIdentity,
			DisplayName:   e.DisplayName,
			Steps:         e.Steps,
			IsLeader:      e.IsLeader,
		})
	}

	return result, nil
}

// resolveIdentities связывает участников с действующими пользователями чата.
// Проверки членства идут параллельно с ограничением limit; участник без связи,
// покинувший сервер или с неудачной проверкой членства отсутствует в
// результате. Неудачные проверки возвращаются списком unverified.
func resolveIdentities(
	ctx context.Context,
	repo competition.Repository,
	membership competition.MembershipChecker,
	scope shared.ScopeID,
	participants []*competition.Participant,
	limit int,
) (map[string]leaderboard.Identity, []UnverifiedIdentity, error) {
	var (
		mu         sync.Mutex
		out        = make(map[string]leaderboard.Identity, len(participants))
		unverified []UnverifiedIdentity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, p := range participants {
		if p == nil {
			continue
		}
		g.Go(func() error {
			chatID, ok, err := repo.ResolveLinkedIdentity(gctx, scope, p.ID)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", p.ID, err)
			}
			if !ok {
				return nil
			}
			member, ok, err := membership.IsIdentityCurrentlyValid(gctx, scope, chatID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				unverified = append(unverified, UnverifiedIdentity{ParticipantID: p.ID, ChatIdentity: chatID, Err: err})
				mu.Unlock()
				return nil
			}
			if !ok {
				return nil
			}

			mu.Lock()
			out[p.ID] = leaderboard.Identity{ChatIdentity: chatID, DisplayName: member.DisplayName}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Slice(unverified, func(i, j int) bool { return unverified[i].ParticipantID < unverified[j].ParticipantID })
	return out, unverified, nil
}
