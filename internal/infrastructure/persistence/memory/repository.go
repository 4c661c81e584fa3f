// Package memory provides an in-process competition.Repository. It backs
// DATABASE_DRIVER=memory and the application-layer tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

type participantKey struct {
	scope shared.ScopeID
	id    string
}

type linkKey struct {
	scope shared.ScopeID
	ref   string
}

// Repository is a mutex-guarded map store. Every read returns a copy so
// callers never alias stored state.
type Repository struct {
	mu sync.RWMutex

	participants map[participantKey]*competition.Participant
	configs      map[shared.ScopeID]*competition.CompetitionConfig
	byChat       map[linkKey]*competition.IdentityLink
	byDevice     map[linkKey]*competition.IdentityLink

	reducer *competition.SubmissionReducer
}

var _ competition.Repository = (*Repository)(nil)

// NewRepository creates an empty store.
func NewRepository() *Repository {
	return &Repository{
		participants: make(map[participantKey]*competition.Participant),
		configs:      make(map[shared.ScopeID]*competition.CompetitionConfig),
		byChat:       make(map[linkKey]*competition.IdentityLink),
		byDevice:     make(map[linkKey]*competition.IdentityLink),
		reducer:      competition.NewSubmissionReducer(),
	}
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Participants
// ─────────────────────────────────────────────────────────────────────────────

func (r *Repository) GetParticipant(ctx context.Context, scope shared.ScopeID, id string) (*competition.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[participantKey{scope, id}]
	if !ok {
		return nil, shared.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (r *Repository) ListParticipants(ctx context.Context, scope shared.ScopeID) ([]*competition.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*competition.Participant, 0)
	for k, p := range r.participants {
		if k.scope == scope {
			out = append(out, cloneParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) EnsureParticipant(ctx context.Context, p *competition.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := participantKey{p.ScopeID, p.ID}
	if _, ok := r.participants[key]; ok {
		return nil
	}
	r.participants[key] = cloneParticipant(p)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Submissions
// ─────────────────────────────────────────────────────────────────────────────

func (r *Repository) AppendOrReplaceSubmission(
	ctx context.Context,
	scope shared.ScopeID,
	participantID string,
	window competition.Window,
	in competition.SubmissionInput,
) (*competition.SubmissionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := participantKey{scope, participantID}
	p, ok := r.participants[key]
	if !ok {
		created, err := competition.NewParticipant(scope, participantID, in.DisplayName, in.SubmittedAt)
		if err != nil {
			return nil, err
		}
		p = created
		r.participants[key] = p
	}

	incoming := competition.SubmissionRecord{
		ID:        in.ID,
		Timestamp: in.SubmittedAt,
		StepCount: in.StepCount,
		Source:    in.Source,
	}
	res := r.reducer.UpsertForWindow(p.History, window, incoming)

	prev := 0
	if res.PreviousValue != nil {
		prev = *res.PreviousValue
	}
	p.History = res.History
	p.CumulativeSteps += in.StepCount - prev
	p.UpdatedAt = in.SubmittedAt

	stored, _ := r.reducer.Latest(p.History, window)
	return &competition.SubmissionOutcome{
		Record:        stored,
		Replaced:      res.Replaced,
		PreviousValue: res.PreviousValue,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

func (r *Repository) GetCompetitionConfig(ctx context.Context, scope shared.ScopeID) (*competition.CompetitionConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[scope]
	if !ok {
		return nil, shared.ErrCompetitionNotFound
	}
	return cloneConfig(cfg), nil
}

func (r *Repository) SaveCompetitionConfig(ctx context.Context, cfg *competition.CompetitionConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.ScopeID] = cloneConfig(cfg)
	return nil
}

func (r *Repository) ListCompetitionConfigs(ctx context.Context) ([]*competition.CompetitionConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*competition.CompetitionConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cloneConfig(cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopeID < out[j].ScopeID })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Identity links
// ─────────────────────────────────────────────────────────────────────────────

func (r *Repository) CreateIdentityLink(ctx context.Context, link *competition.IdentityLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chat := linkKey{link.ScopeID, link.ChatIdentity}
	device := linkKey{link.ScopeID, link.DeviceIdentity}
	if _, ok := r.byChat[chat]; ok {
		return shared.ErrChatIdentityLinked
	}
	if _, ok := r.byDevice[device]; ok {
		return shared.ErrDeviceLinked
	}

	stored := *link
	r.byChat[chat] = &stored
	r.byDevice[device] = &stored
	return nil
}

func (r *Repository) GetLinkByChatIdentity(ctx context.Context, scope shared.ScopeID, chatIdentity string) (*competition.IdentityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.byChat[linkKey{scope, chatIdentity}]
	if !ok {
		return nil, shared.ErrLinkNotFound
	}
	out := *link
	return &out, nil
}

func (r *Repository) ResolveLinkedIdentity(ctx context.Context, scope shared.ScopeID, participantID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if chatID, ok := competition.ChatIdentityFromParticipantID(participantID); ok {
		return chatID, true, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.byDevice[linkKey{scope, participantID}]
	if !ok {
		return "", false, nil
	}
	return link.ChatIdentity, true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Copies
// ─────────────────────────────────────────────────────────────────────────────

func cloneParticipant(p *competition.Participant) *competition.Participant {
	out := *p
	out.History = make([]competition.SubmissionRecord, len(p.History))
	copy(out.History, p.History)
	return &out
}

func cloneConfig(cfg *competition.CompetitionConfig) *competition.CompetitionConfig {
	out := *cfg
	if cfg.AnchorStartDate != nil {
		a := *cfg.AnchorStartDate
		out.AnchorStartDate = &a
	}
	return &out
}
