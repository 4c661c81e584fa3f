package memory

import (
	"context"
	"sync"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// Membership is a fixed roster per scope. The HTTP-only process uses it
// when no Discord token is configured, and tests use it as a fake.
type Membership struct {
	mu sync.RWMutex

	// AllowAll treats every identity as a member named after itself.
	AllowAll bool

	members map[shared.ScopeID]map[string]competition.Member
}

var _ competition.MembershipChecker = (*Membership)(nil)

// NewMembership creates an empty roster.
func NewMembership() *Membership {
	return &Membership{members: make(map[shared.ScopeID]map[string]competition.Member)}
}

// Add puts a member on the roster of scope.
func (m *Membership) Add(scope shared.ScopeID, member competition.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[scope] == nil {
		m.members[scope] = make(map[string]competition.Member)
	}
	m.members[scope][member.ChatIdentity] = member
}

// Remove takes a member off the roster.
func (m *Membership) Remove(scope shared.ScopeID, chatIdentity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[scope], chatIdentity)
}

func (m *Membership) IsIdentityCurrentlyValid(ctx context.Context, scope shared.ScopeID, identityRef string) (competition.Member, bool, error) {
	if err := ctx.Err(); err != nil {
		return competition.Member{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if member, ok := m.members[scope][identityRef]; ok {
		return member, true, nil
	}
	if m.AllowAll && identityRef != "" {
		return competition.Member{ChatIdentity: identityRef, DisplayName: identityRef}, true, nil
	}
	return competition.Member{}, false, nil
}
