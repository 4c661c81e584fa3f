package redis

import (
	"context"
	"errors"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// MembershipCache implements competition.MembershipChecker by caching the
// answers of another checker. Negative answers are cached too; errors are not.
// A failing Redis degrades to direct lookups.
type MembershipCache struct {
	store Store
	inner competition.MembershipChecker
	ttl   time.Duration
	log   *logger.Logger
}

var _ competition.MembershipChecker = (*MembershipCache)(nil)

// NewMembershipCache wraps inner.
func NewMembershipCache(store Store, inner competition.MembershipChecker, ttl time.Duration, log *logger.Logger) *MembershipCache {
	if ttl <= 0 {
		ttl = TTLMembership
	}
	if log == nil {
		log = logger.Nop()
	}
	return &MembershipCache{
		store: store,
		inner: inner,
		ttl:   ttl,
		log:   log.WithComponent("membership_cache"),
	}
}

type cachedMember struct {
	Valid       bool   `json:"valid"`
	DisplayName string `json:"displayName,omitempty"`
}

func (c *MembershipCache) IsIdentityCurrentlyValid(ctx context.Context, scope shared.ScopeID, identityRef string) (competition.Member, bool, error) {
	key := MembershipKey(scope, identityRef)

	var cached cachedMember
	err := c.store.Get(ctx, key, &cached)
	switch {
	case err == nil:
		if !cached.Valid {
			return competition.Member{}, false, nil
		}
		return competition.Member{ChatIdentity: identityRef, DisplayName: cached.DisplayName}, true, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		c.log.Warn("membership cache read failed", logger.Err(err), logger.ScopeID(string(scope)))
	}

	member, ok, err := c.inner.IsIdentityCurrentlyValid(ctx, scope, identityRef)
	if err != nil {
		return competition.Member{}, false, err
	}

	if err := c.store.Set(ctx, key, cachedMember{Valid: ok, DisplayName: member.DisplayName}, c.ttl); err != nil {
		c.log.Warn("membership cache write failed", logger.Err(err), logger.ScopeID(string(scope)))
	}
	return member, ok, nil
}

// Invalidate forgets a cached answer, e.g. after a guild member leaves.
func (c *MembershipCache) Invalidate(ctx context.Context, scope shared.ScopeID, identityRef string) error {
	return c.store.Delete(ctx, MembershipKey(scope, identityRef))
}
